// internal/app/store/attendance/attendancestore.go
package attendancestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/fieldhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrAlreadyRecorded is returned by Insert when a record already exists
// for the (worker, date) pair.
var ErrAlreadyRecorded = errors.New("attendance already recorded for this worker and date")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("attendance")}
}

// EnsureIndexes creates the unique (worker_id, date) index. That index is
// the concurrency guard for same-day double check-ins: the losing insert
// fails instead of creating a duplicate row.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "worker_id", Value: 1},
				{Key: "date", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "neighborhood_id", Value: 1},
				{Key: "date", Value: -1},
			},
		},
	})
	return err
}

// Get returns the record for one worker and date, or mongo.ErrNoDocuments.
func (s *Store) Get(ctx context.Context, workerID primitive.ObjectID, date string) (models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := s.c.FindOne(ctx, bson.M{"worker_id": workerID, "date": date}).Decode(&rec)
	return rec, err
}

// Insert writes a fresh record for a (worker, date) pair. The caller
// decides insert-vs-edit with Get first, inside the same transaction;
// when a concurrent insert wins the race the unique index rejects this
// one and the transaction retries or fails whole.
func (s *Store) Insert(ctx context.Context, rec models.AttendanceRecord) (models.AttendanceRecord, error) {
	rec.UpdatedAt = time.Now().UTC()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	rec.EditCount = 0
	if _, err := s.c.InsertOne(ctx, rec); err != nil {
		if wafflemongo.IsDup(err) {
			return models.AttendanceRecord{}, ErrAlreadyRecorded
		}
		return models.AttendanceRecord{}, err
	}
	return rec, nil
}

// Edit re-records an existing (worker, date) row in place, incrementing
// its edit count. Returns mongo.ErrNoDocuments when there is no row.
func (s *Store) Edit(ctx context.Context, rec models.AttendanceRecord) (models.AttendanceRecord, error) {
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{
		"$set": bson.M{
			"status":           rec.Status,
			"checked_in_at":    rec.CheckedInAt,
			"notes":            rec.Notes,
			"recorded_by_id":   rec.RecordedByID,
			"recorded_by_name": rec.RecordedByName,
			"updated_at":       time.Now().UTC(),
		},
		"$inc": bson.M{"edit_count": 1},
	}
	var stored models.AttendanceRecord
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"worker_id": rec.WorkerID, "date": rec.Date},
		update, after).Decode(&stored)
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	return stored, nil
}

// Delete removes the record for one worker and date, returning the deleted
// snapshot so callers can audit it. Returns mongo.ErrNoDocuments when no
// record exists.
func (s *Store) Delete(ctx context.Context, workerID primitive.ObjectID, date string) (models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := s.c.FindOneAndDelete(ctx, bson.M{"worker_id": workerID, "date": date}).Decode(&rec)
	return rec, err
}

// HistoryFilter narrows attendance queries. WorkerFilter comes from the
// scope resolver so callers only ever see rows inside their scope.
type HistoryFilter struct {
	WorkerIDs       []primitive.ObjectID
	NeighborhoodIDs []primitive.ObjectID
	StartDate       string
	EndDate         string
}

func (f HistoryFilter) query() bson.M {
	q := bson.M{}
	if len(f.WorkerIDs) > 0 {
		q["worker_id"] = bson.M{"$in": f.WorkerIDs}
	}
	if len(f.NeighborhoodIDs) > 0 {
		q["neighborhood_id"] = bson.M{"$in": f.NeighborhoodIDs}
	}
	if f.StartDate != "" || f.EndDate != "" {
		dq := bson.M{}
		if f.StartDate != "" {
			dq["$gte"] = f.StartDate
		}
		if f.EndDate != "" {
			dq["$lte"] = f.EndDate
		}
		q["date"] = dq
	}
	return q
}

// History returns records matching the filter, newest date first.
func (s *Store) History(ctx context.Context, filter HistoryFilter, limit, offset int64) ([]models.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "checked_in_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cur, err := s.c.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.AttendanceRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of records matching the filter.
func (s *Store) Count(ctx context.Context, filter HistoryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.query())
}
