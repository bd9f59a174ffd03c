// internal/domain/models/city.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// City is the second tier of the organizational tree. A city belongs to at
// most one area (AreaID is nil while a city is unassigned) and owns zero or
// more neighborhoods. City coordinators carry their city assignments on the
// user document (CityIDs).
type City struct {
	ID     primitive.ObjectID `bson:"_id" json:"id"`
	Name   string             `bson:"name" json:"name"`
	NameCI string             `bson:"name_ci" json:"name_ci"`

	AreaID *primitive.ObjectID `bson:"area_id,omitempty" json:"area_id,omitempty"`

	TimeZone string `bson:"time_zone,omitempty" json:"time_zone,omitempty"`
	Status   string `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
