// internal/domain/models/attendance.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AttendanceRecord is one row per (worker, calendar date), enforced by a
// unique index. A worker with no row for a date is simply absent; a row
// means the worker checked in. Same-day double check-ins race on the unique
// index and the loser's write lands as an update (last write wins).
type AttendanceRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	WorkerID       primitive.ObjectID `bson:"worker_id" json:"worker_id"`
	NeighborhoodID primitive.ObjectID `bson:"neighborhood_id" json:"neighborhood_id"`

	// Date is the calendar day in the campaign timezone, formatted
	// 2006-01-02. Stored as a string so the unique (worker_id, date)
	// index is exact regardless of clock skew.
	Date string `bson:"date" json:"date"`

	Status      string    `bson:"status" json:"status"` // present
	CheckedInAt time.Time `bson:"checked_in_at" json:"checked_in_at"`
	Notes       string    `bson:"notes,omitempty" json:"notes,omitempty"`

	// Edit provenance: who last touched the record and how many times it
	// has been re-recorded after the initial check-in.
	RecordedByID   primitive.ObjectID `bson:"recorded_by_id" json:"recorded_by_id"`
	RecordedByName string             `bson:"recorded_by_name" json:"recorded_by_name"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
	EditCount      int                `bson:"edit_count" json:"edit_count"`
}
