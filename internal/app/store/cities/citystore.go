// internal/app/store/cities/citystore.go
package citystore

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

var ErrDuplicateCity = errors.New("a city with this name already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("cities")}
}

func (s *Store) Create(ctx context.Context, city models.City) (models.City, error) {
	now := time.Now().UTC()
	city.ID = primitive.NewObjectID()
	city.NameCI = text.Fold(city.Name)
	if city.Status == "" {
		city.Status = status.Active
	}
	city.CreatedAt = now
	city.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, city); err != nil {
		if wafflemongo.IsDup(err) {
			return models.City{}, ErrDuplicateCity
		}
		return models.City{}, err
	}
	return city, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.City, error) {
	var city models.City
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&city)
	return city, err
}

// GetByIDs loads multiple cities by ObjectID.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.City, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.City
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IDsByArea returns the IDs of all cities belonging to any of the given
// areas. This is the area-manager scope expansion.
func (s *Store) IDsByArea(ctx context.Context, areaIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	if len(areaIDs) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"area_id": bson.M{"$in": areaIDs}},
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

// ListActive returns all active cities sorted by folded name.
func (s *Store) ListActive(ctx context.Context) ([]models.City, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"status": status.Active}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.City
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByArea returns the cities in one area.
func (s *Store) ListByArea(ctx context.Context, areaID primitive.ObjectID) ([]models.City, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"area_id": areaID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.City
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update modifies a city's mutable fields and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, city models.City) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if city.Name != "" {
		set["name"] = city.Name
		set["name_ci"] = text.Fold(city.Name)
	}
	if city.TimeZone != "" {
		set["time_zone"] = city.TimeZone
	}
	if city.Status != "" {
		set["status"] = city.Status
	}
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil && wafflemongo.IsDup(err) {
		return ErrDuplicateCity
	}
	return err
}

// SetArea moves a city into an area, or detaches it with nil.
func (s *Store) SetArea(ctx context.Context, id primitive.ObjectID, areaID *primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}}
	if areaID == nil {
		update["$unset"] = bson.M{"area_id": ""}
	} else {
		update["$set"].(bson.M)["area_id"] = *areaID
	}
	_, err := s.c.UpdateByID(ctx, id, update)
	return err
}

// Delete removes a city by ID. Returns the number of documents deleted.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
