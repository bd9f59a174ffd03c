// internal/app/store/neighborhoods/neighborhoodstore.go
package neighborhoodstore

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

var ErrDuplicateNeighborhood = errors.New("a neighborhood with this name already exists in this city")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("neighborhoods")}
}

func (s *Store) Create(ctx context.Context, n models.Neighborhood) (models.Neighborhood, error) {
	now := time.Now().UTC()
	n.ID = primitive.NewObjectID()
	n.NameCI = text.Fold(n.Name)
	if n.Status == "" {
		n.Status = status.Active
	}
	n.CreatedAt = now
	n.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, n); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Neighborhood{}, ErrDuplicateNeighborhood
		}
		return models.Neighborhood{}, err
	}
	return n, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Neighborhood, error) {
	var n models.Neighborhood
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	return n, err
}

// GetByIDs loads multiple neighborhoods by ObjectID.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Neighborhood, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Neighborhood
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByCity returns the neighborhoods in one city, sorted by folded name.
func (s *Store) ListByCity(ctx context.Context, cityID primitive.ObjectID) ([]models.Neighborhood, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"city_id": cityID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Neighborhood
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IDsByCity returns the IDs of all neighborhoods in the given cities.
func (s *Store) IDsByCity(ctx context.Context, cityIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	if len(cityIDs) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"city_id": bson.M{"$in": cityIDs}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

// Update modifies a neighborhood's mutable fields and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, n models.Neighborhood) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if n.Name != "" {
		set["name"] = n.Name
		set["name_ci"] = text.Fold(n.Name)
	}
	if n.Status != "" {
		set["status"] = n.Status
	}
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil && wafflemongo.IsDup(err) {
		return ErrDuplicateNeighborhood
	}
	return err
}

// Delete removes a neighborhood by ID. Returns the number deleted.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
