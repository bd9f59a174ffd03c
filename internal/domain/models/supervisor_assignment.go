// internal/domain/models/supervisor_assignment.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SupervisorAssignment links a supervisor (user) to a neighborhood they run.
// Supervisors can be assigned to multiple neighborhoods via multiple
// assignment records. A unique index on (user_id, neighborhood_id) prevents
// duplicate assignments.
type SupervisorAssignment struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	NeighborhoodID primitive.ObjectID `bson:"neighborhood_id" json:"neighborhood_id"`

	// Audit fields
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	CreatedByID   primitive.ObjectID `bson:"created_by_id" json:"created_by_id"`
	CreatedByName string             `bson:"created_by_name" json:"created_by_name"`
}
