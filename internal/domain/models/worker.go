// internal/domain/models/worker.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Worker is the leaf of the organizational tree: a field activist who
// belongs to exactly one neighborhood and, transitively, one city.
//
// SupervisorID is the assignment invariant the balancer maintains:
//   - neighborhood has zero supervisors  → SupervisorID must be nil
//   - neighborhood has ≥1 supervisors    → SupervisorID must name a
//     supervisor currently assigned to this same neighborhood
type Worker struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"full_name_ci"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`

	NeighborhoodID primitive.ObjectID `bson:"neighborhood_id" json:"neighborhood_id"`
	// CityID is denormalized from the neighborhood so city-scoped queries
	// do not need a join.
	CityID primitive.ObjectID `bson:"city_id" json:"city_id"`

	SupervisorID *primitive.ObjectID `bson:"supervisor_id,omitempty" json:"supervisor_id,omitempty"`

	// UserID links to a login account when the worker can sign in for
	// self check-in. Most workers have none.
	UserID *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`

	Status string `bson:"status" json:"status"` // active | inactive

	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	CreatedByID primitive.ObjectID `bson:"created_by_id,omitempty" json:"created_by_id,omitempty"`
}
