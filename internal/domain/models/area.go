// internal/domain/models/area.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Area is the top tier of the organizational tree. An area owns zero or
// more cities and optionally has one assigned area manager.
type Area struct {
	ID     primitive.ObjectID `bson:"_id" json:"id"`
	Name   string             `bson:"name" json:"name"`
	NameCI string             `bson:"name_ci" json:"name_ci"` // lowercase, diacritics-stripped

	// ManagerID is the user currently assigned as area manager, if any.
	ManagerID *primitive.ObjectID `bson:"manager_id,omitempty" json:"manager_id,omitempty"`

	Status string `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
