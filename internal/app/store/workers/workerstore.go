// internal/app/store/workers/workerstore.go
package workerstore

import (
	"context"
	"time"

	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("workers")}
}

func (s *Store) Create(ctx context.Context, w models.Worker) (models.Worker, error) {
	now := time.Now().UTC()
	w.ID = primitive.NewObjectID()
	w.FullNameCI = text.Fold(w.FullName)
	if w.Status == "" {
		w.Status = status.Active
	}
	w.CreatedAt = now
	w.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, w); err != nil {
		return models.Worker{}, err
	}
	return w, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Worker, error) {
	var w models.Worker
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	return w, err
}

// ListByNeighborhood returns workers in one neighborhood, active only when
// activeOnly is set, sorted by folded name.
func (s *Store) ListByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID, activeOnly bool) ([]models.Worker, error) {
	filter := bson.M{"neighborhood_id": neighborhoodID}
	if activeOnly {
		filter["status"] = status.Active
	}
	opts := options.Find().SetSort(bson.D{{Key: "full_name_ci", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Worker
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns workers matching an arbitrary scope filter (built by the
// scope resolver), sorted by folded name.
func (s *Store) List(ctx context.Context, filter bson.M, limit int64) ([]models.Worker, error) {
	opts := options.Find().SetSort(bson.D{{Key: "full_name_ci", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Worker
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Page returns workers matching filter with caller-supplied find options.
// Used by the paged list, which sets its own sort and limit for keyset
// pagination.
func (s *Store) Page(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Worker, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Worker
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update modifies a worker's mutable profile fields and refreshes
// UpdatedAt. Supervisor assignment changes go through SetSupervisor so the
// balancer stays in the loop.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, w models.Worker) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if w.FullName != "" {
		set["full_name"] = w.FullName
		set["full_name_ci"] = text.Fold(w.FullName)
	}
	if w.Phone != "" {
		set["phone"] = w.Phone
	}
	if w.Status != "" {
		set["status"] = w.Status
	}
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	return err
}

// Move relocates a worker to another neighborhood and refreshes the
// denormalized city reference. The supervisor reference is left to the
// caller, which has already validated it for the destination.
func (s *Store) Move(ctx context.Context, id, neighborhoodID, cityID primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"neighborhood_id": neighborhoodID,
		"city_id":         cityID,
		"updated_at":      time.Now().UTC(),
	}})
	return err
}

// SetSupervisor points a worker at a supervisor, or back to the
// neighborhood pool with nil. Callers must have validated the assignment
// against the balancer first.
func (s *Store) SetSupervisor(ctx context.Context, id primitive.ObjectID, supervisorID *primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}}
	if supervisorID == nil {
		update["$unset"] = bson.M{"supervisor_id": ""}
	} else {
		update["$set"].(bson.M)["supervisor_id"] = *supervisorID
	}
	_, err := s.c.UpdateByID(ctx, id, update)
	return err
}

// Delete removes a worker by ID. Returns the number deleted.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ActiveBySupervisor returns the active workers in one neighborhood
// currently assigned to the given supervisor, in _id order (stable for
// cascade batches).
func (s *Store) ActiveBySupervisor(ctx context.Context, neighborhoodID, supervisorID primitive.ObjectID) ([]models.Worker, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{
		"neighborhood_id": neighborhoodID,
		"supervisor_id":   supervisorID,
		"status":          status.Active,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Worker
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountActiveBySupervisor returns, for one neighborhood, how many active
// workers each supervisor currently holds. Supervisors with zero workers do
// not appear in the map; callers seed missing entries themselves.
func (s *Store) CountActiveBySupervisor(ctx context.Context, neighborhoodID primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"neighborhood_id": neighborhoodID,
			"status":          status.Active,
			"supervisor_id":   bson.M{"$ne": nil},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$supervisor_id",
			"count": bson.M{"$sum": 1},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	counts := make(map[primitive.ObjectID]int)
	for cur.Next(ctx) {
		var row struct {
			ID    primitive.ObjectID `bson:"_id"`
			Count int                `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.ID] = row.Count
	}
	return counts, cur.Err()
}

// OrphansInNeighborhood returns active workers in the neighborhood whose
// supervisor reference is unset. Meaningful only for neighborhoods that
// currently have supervisors; the balancer interprets the result.
func (s *Store) OrphansInNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID) ([]models.Worker, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{
		"neighborhood_id": neighborhoodID,
		"status":          status.Active,
		"supervisor_id":   nil,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Worker
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BulkSetSupervisor points every listed worker at the given supervisor (or
// clears with nil) in one update. Used inside balancer transactions.
func (s *Store) BulkSetSupervisor(ctx context.Context, workerIDs []primitive.ObjectID, supervisorID *primitive.ObjectID) (int64, error) {
	if len(workerIDs) == 0 {
		return 0, nil
	}
	update := bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}}
	if supervisorID == nil {
		update["$unset"] = bson.M{"supervisor_id": ""}
	} else {
		update["$set"].(bson.M)["supervisor_id"] = *supervisorID
	}
	res, err := s.c.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": workerIDs}}, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
