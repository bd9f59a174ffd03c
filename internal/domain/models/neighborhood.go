// internal/domain/models/neighborhood.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Neighborhood is the third tier of the organizational tree. It belongs to
// exactly one city and owns zero or more workers. Supervisor assignments are
// many-to-many via the supervisor_assignments collection; that collection is
// the single source of truth for "does this neighborhood have supervisors."
type Neighborhood struct {
	ID     primitive.ObjectID `bson:"_id" json:"id"`
	Name   string             `bson:"name" json:"name"`
	NameCI string             `bson:"name_ci" json:"name_ci"`

	CityID primitive.ObjectID `bson:"city_id" json:"city_id"`

	Status string `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
