// internal/app/store/users/fetcher.go
package userstore

import (
	"context"

	"github.com/dalemusser/fieldhub/internal/app/system/auth"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/normalize"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Fetcher implements auth.UserFetcher to load fresh user data on each
// request, so role and assignment changes take effect immediately.
type Fetcher struct {
	users   *mongo.Collection
	workers *mongo.Collection
}

// NewFetcher creates a UserFetcher that queries the given database.
func NewFetcher(db *mongo.Database) *Fetcher {
	return &Fetcher{
		users:   db.Collection("users"),
		workers: db.Collection("workers"),
	}
}

// FetchSessionUser retrieves a user by ID. ok=false when the user is not
// found, disabled, or any error occurs — the session is then treated as
// unauthenticated (fail closed).
func (f *Fetcher) FetchSessionUser(ctx context.Context, userID string) (*auth.SessionUser, bool) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	var u models.User
	proj := options.FindOne().SetProjection(bson.M{
		"_id":            1,
		"full_name":      1,
		"login_id":       1,
		"role":           1,
		"status":         1,
		"is_super_admin": 1,
		"area_ids":       1,
		"city_ids":       1,
		"worker_id":      1,
	})
	if err := f.users.FindOne(ctx, bson.M{"_id": oid}, proj).Decode(&u); err != nil {
		return nil, false
	}
	if normalize.Status(u.Status) == status.Disabled {
		return nil, false
	}

	su := &auth.SessionUser{
		ID:           u.ID.Hex(),
		Name:         u.FullName,
		LoginID:      u.LoginID,
		Role:         normalize.Role(u.Role),
		IsSuperAdmin: u.IsSuperAdmin,
	}
	for _, id := range u.AreaIDs {
		su.AreaIDs = append(su.AreaIDs, id.Hex())
	}
	for _, id := range u.CityIDs {
		su.CityIDs = append(su.CityIDs, id.Hex())
	}

	if su.Role == authz.RoleWorker {
		if u.WorkerID != nil {
			su.WorkerID = u.WorkerID.Hex()
		} else {
			// Fall back to the back-reference on the worker document.
			var w struct {
				ID primitive.ObjectID `bson:"_id"`
			}
			if err := f.workers.FindOne(ctx, bson.M{"user_id": oid},
				options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&w); err == nil {
				su.WorkerID = w.ID.Hex()
			}
		}
	}

	return su, true
}
