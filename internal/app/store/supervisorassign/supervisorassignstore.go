// internal/app/store/supervisorassign/supervisorassignstore.go
package supervisorassign

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

// Store manages the supervisor↔neighborhood junction collection. This
// collection is the single source of truth for which neighborhoods
// currently have supervisors; the balancer consults it on every worker
// assignment.
type Store struct {
	c *mongo.Collection
}

var ErrAlreadyAssigned = errors.New("supervisor is already assigned to this neighborhood")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("supervisor_assignments")}
}

// EnsureIndexes creates the unique (user_id, neighborhood_id) index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "neighborhood_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Create inserts a new supervisor-neighborhood assignment.
// If CreatedAt is zero, it will be set to now (UTC).
func (s *Store) Create(ctx context.Context, a models.SupervisorAssignment) (models.SupervisorAssignment, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	res, err := s.c.InsertOne(ctx, a)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return a, ErrAlreadyAssigned
		}
		return a, err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		a.ID = oid
	}
	return a, nil
}

// Delete removes the assignment linking one supervisor to one neighborhood.
// Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, userID, neighborhoodID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{
		"user_id":         userID,
		"neighborhood_id": neighborhoodID,
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListByUser returns all neighborhood assignments for a supervisor.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.SupervisorAssignment, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.SupervisorAssignment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByNeighborhood returns all supervisor assignments for a neighborhood
// in creation order. The balancer relies on this ordering as its
// deterministic tie-break.
func (s *Store) ListByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID) ([]models.SupervisorAssignment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"neighborhood_id": neighborhoodID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.SupervisorAssignment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NeighborhoodIDsByUser returns just the neighborhood IDs for a supervisor.
// This is the supervisor scope used by authorization checks.
func (s *Store) NeighborhoodIDsByUser(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var a models.SupervisorAssignment
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		ids = append(ids, a.NeighborhoodID)
	}
	return ids, cur.Err()
}

// DeleteByNeighborhood removes all supervisor assignments for a
// neighborhood. Used when a neighborhood is deleted.
func (s *Store) DeleteByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"neighborhood_id": neighborhoodID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Exists checks if a supervisor-neighborhood assignment already exists.
func (s *Store) Exists(ctx context.Context, userID, neighborhoodID primitive.ObjectID) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"user_id":         userID,
		"neighborhood_id": neighborhoodID,
	}).Err()
	if err == nil {
		return true, nil
	}
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	return false, err
}

// CountByNeighborhood returns the number of supervisors assigned to a
// neighborhood.
func (s *Store) CountByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"neighborhood_id": neighborhoodID})
}

// SupervisedNeighborhoodIDs returns the distinct neighborhoods that have at
// least one supervisor. Used by orphan diagnostics.
func (s *Store) SupervisedNeighborhoodIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	raw, err := s.c.Distinct(ctx, "neighborhood_id", bson.M{})
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
