// internal/app/store/areas/areastore.go
package areastore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var ErrDuplicateArea = errors.New("an area with this name already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("areas")}
}

func (s *Store) Create(ctx context.Context, a models.Area) (models.Area, error) {
	now := time.Now().UTC()
	a.ID = primitive.NewObjectID()
	a.NameCI = text.Fold(a.Name)
	if a.Status == "" {
		a.Status = status.Active
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, a); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Area{}, ErrDuplicateArea
		}
		return models.Area{}, err
	}
	return a, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Area, error) {
	var a models.Area
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	return a, err
}

// GetByIDs returns the areas with the given IDs sorted by folded name.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Area, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Area
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActive returns all active areas sorted by folded name.
func (s *Store) ListActive(ctx context.Context) ([]models.Area, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"status": status.Active}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Area
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update modifies an area's mutable fields and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, a models.Area) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if a.Name != "" {
		set["name"] = a.Name
		set["name_ci"] = text.Fold(a.Name)
	}
	if a.Status != "" {
		set["status"] = a.Status
	}
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil && wafflemongo.IsDup(err) {
		return ErrDuplicateArea
	}
	return err
}

// Delete removes an area by ID. Returns the number of documents deleted.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// SetManager assigns (or clears, with nil) the area manager.
func (s *Store) SetManager(ctx context.Context, id primitive.ObjectID, managerID *primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}}
	if managerID == nil {
		update["$unset"] = bson.M{"manager_id": ""}
	} else {
		update["$set"].(bson.M)["manager_id"] = *managerID
	}
	_, err := s.c.UpdateByID(ctx, id, update)
	return err
}
