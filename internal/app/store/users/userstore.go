// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/fieldhub/internal/app/system/normalize"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

var ErrDuplicateLoginID = errors.New("a user with this login ID already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// Create inserts a new user. Case-insensitive shadow fields and timestamps
// are filled in here.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	now := time.Now().UTC()
	u.ID = primitive.NewObjectID()
	u.FullNameCI = text.Fold(u.FullName)
	u.LoginID = normalize.Email(u.LoginID)
	u.LoginIDCI = text.Fold(u.LoginID)
	if u.Status == "" {
		u.Status = status.Active
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateLoginID
		}
		return models.User{}, err
	}
	return u, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByLoginID looks up a user by case-insensitive login ID.
// Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByLoginID(ctx context.Context, loginID string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"login_id_ci": text.Fold(loginID)}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByRole returns all users with the given role, optionally restricted to
// active status.
func (s *Store) GetByRole(ctx context.Context, role string, activeOnly bool) ([]models.User, error) {
	filter := bson.M{"role": normalize.Role(role)}
	if activeOnly {
		filter["status"] = status.Active
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProfile modifies a user's mutable profile fields and refreshes
// UpdatedAt. Zero-valued fields are left untouched.
func (s *Store) UpdateProfile(ctx context.Context, id primitive.ObjectID, u models.User) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if u.FullName != "" {
		set["full_name"] = u.FullName
		set["full_name_ci"] = text.Fold(u.FullName)
	}
	if u.Role != "" {
		set["role"] = normalize.Role(u.Role)
	}
	if u.Status != "" {
		set["status"] = normalize.Status(u.Status)
	}
	if u.PasswordHash != "" {
		set["password_hash"] = u.PasswordHash
	}
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	return err
}

// SetAreaIDs replaces an area manager's assigned areas.
func (s *Store) SetAreaIDs(ctx context.Context, id primitive.ObjectID, areaIDs []primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"area_ids":   areaIDs,
		"updated_at": time.Now().UTC(),
	}})
	return err
}

// AddAreaID adds one area to a manager's assignment list if not present.
func (s *Store) AddAreaID(ctx context.Context, id, areaID primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{
		"$addToSet": bson.M{"area_ids": areaID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
	return err
}

// RemoveAreaID removes one area from a manager's assignment list.
func (s *Store) RemoveAreaID(ctx context.Context, id, areaID primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{
		"$pull": bson.M{"area_ids": areaID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	return err
}

// SetCityIDs replaces a coordinator's assigned cities.
func (s *Store) SetCityIDs(ctx context.Context, id primitive.ObjectID, cityIDs []primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"city_ids":   cityIDs,
		"updated_at": time.Now().UTC(),
	}})
	return err
}

// ClearWorkerLink unsets the worker reference on any account linked to
// the given worker document. Used when the worker is deleted.
func (s *Store) ClearWorkerLink(ctx context.Context, workerID primitive.ObjectID) error {
	_, err := s.c.UpdateMany(ctx,
		bson.M{"worker_id": workerID},
		bson.M{"$unset": bson.M{"worker_id": ""}, "$set": bson.M{"updated_at": time.Now().UTC()}})
	return err
}

// RemoveCityIDFromAll pulls a city out of every coordinator's assignment
// list. Used when a city is deleted so no scope keeps pointing at it.
func (s *Store) RemoveCityIDFromAll(ctx context.Context, cityID primitive.ObjectID) error {
	_, err := s.c.UpdateMany(ctx,
		bson.M{"city_ids": cityID},
		bson.M{"$pull": bson.M{"city_ids": cityID}, "$set": bson.M{"updated_at": time.Now().UTC()}})
	return err
}

// RemoveAreaIDFromAll pulls an area out of every manager's assignment
// list. Used when an area is deleted so no scope keeps pointing at it.
func (s *Store) RemoveAreaIDFromAll(ctx context.Context, areaID primitive.ObjectID) error {
	_, err := s.c.UpdateMany(ctx,
		bson.M{"area_ids": areaID},
		bson.M{"$pull": bson.M{"area_ids": areaID}, "$set": bson.M{"updated_at": time.Now().UTC()}})
	return err
}

// SetStatus updates a user's status (active/disabled).
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, st string) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"status":     normalize.Status(st),
		"updated_at": time.Now().UTC(),
	}})
	return err
}

// PromoteSuperAdmin sets the super-admin override flag on the user with the
// given login ID, creating nothing. Used by the startup bootstrap.
func (s *Store) PromoteSuperAdmin(ctx context.Context, loginID string) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"login_id_ci": text.Fold(loginID)},
		bson.M{"$set": bson.M{"is_super_admin": true, "updated_at": time.Now().UTC()}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0 || res.MatchedCount > 0, nil
}
