// internal/testutil/fixtures.go
package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/fieldhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateArea inserts an active area with the given name.
func (f *Fixtures) CreateArea(ctx context.Context, name string) models.Area {
	f.t.Helper()

	now := time.Now().UTC()
	area := models.Area{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("areas").InsertOne(ctx, area); err != nil {
		f.t.Fatalf("failed to create test area: %v", err)
	}
	return area
}

// CreateCity inserts an active city. Pass nil areaID for an unassigned city.
func (f *Fixtures) CreateCity(ctx context.Context, name string, areaID *primitive.ObjectID) models.City {
	f.t.Helper()

	now := time.Now().UTC()
	city := models.City{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		AreaID:    areaID,
		TimeZone:  "America/New_York",
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("cities").InsertOne(ctx, city); err != nil {
		f.t.Fatalf("failed to create test city: %v", err)
	}
	return city
}

// CreateNeighborhood inserts an active neighborhood belonging to cityID.
func (f *Fixtures) CreateNeighborhood(ctx context.Context, name string, cityID primitive.ObjectID) models.Neighborhood {
	f.t.Helper()

	now := time.Now().UTC()
	n := models.Neighborhood{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		CityID:    cityID,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("neighborhoods").InsertOne(ctx, n); err != nil {
		f.t.Fatalf("failed to create test neighborhood: %v", err)
	}
	return n
}

// CreateUser inserts an active user with the given role. Scope fields
// (area/city assignments) are left empty; set them with the returned ID.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, loginID, role string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:         primitive.NewObjectID(),
		FullName:   fullName,
		FullNameCI: text.Fold(fullName),
		LoginID:    loginID,
		LoginIDCI:  text.Fold(loginID),
		AuthMethod: "internal",
		Role:       role,
		Status:     "active",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateAreaManager inserts an area manager assigned to the given areas.
func (f *Fixtures) CreateAreaManager(ctx context.Context, fullName, loginID string, areaIDs ...primitive.ObjectID) models.User {
	f.t.Helper()

	u := f.CreateUser(ctx, fullName, loginID, "areamanager")
	if len(areaIDs) > 0 {
		u.AreaIDs = areaIDs
		if _, err := f.db.Collection("users").UpdateByID(ctx, u.ID,
			map[string]any{"$set": map[string]any{"area_ids": areaIDs}}); err != nil {
			f.t.Fatalf("failed to assign areas: %v", err)
		}
	}
	return u
}

// CreateCoordinator inserts a coordinator assigned to the given cities.
func (f *Fixtures) CreateCoordinator(ctx context.Context, fullName, loginID string, cityIDs ...primitive.ObjectID) models.User {
	f.t.Helper()

	u := f.CreateUser(ctx, fullName, loginID, "coordinator")
	if len(cityIDs) > 0 {
		u.CityIDs = cityIDs
		if _, err := f.db.Collection("users").UpdateByID(ctx, u.ID,
			map[string]any{"$set": map[string]any{"city_ids": cityIDs}}); err != nil {
			f.t.Fatalf("failed to assign cities: %v", err)
		}
	}
	return u
}

// CreateSupervisor inserts a supervisor user and one assignment row per
// given neighborhood.
func (f *Fixtures) CreateSupervisor(ctx context.Context, fullName, loginID string, neighborhoodIDs ...primitive.ObjectID) models.User {
	f.t.Helper()

	u := f.CreateUser(ctx, fullName, loginID, "supervisor")
	for _, nbhd := range neighborhoodIDs {
		f.AssignSupervisor(ctx, u.ID, nbhd)
	}
	return u
}

// AssignSupervisor inserts a supervisor_assignments row directly,
// bypassing the balancer. Use it to arrange state; go through the balancer
// to test the cascades themselves.
func (f *Fixtures) AssignSupervisor(ctx context.Context, userID, neighborhoodID primitive.ObjectID) models.SupervisorAssignment {
	f.t.Helper()

	a := models.SupervisorAssignment{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		NeighborhoodID: neighborhoodID,
		CreatedAt:      time.Now().UTC(),
		CreatedByName:  "fixture",
	}
	if _, err := f.db.Collection("supervisor_assignments").InsertOne(ctx, a); err != nil {
		f.t.Fatalf("failed to create supervisor assignment: %v", err)
	}
	return a
}

// CreateWorker inserts an active worker. Pass nil supervisorID for an
// unassigned (pool) worker.
func (f *Fixtures) CreateWorker(ctx context.Context, fullName string, neighborhoodID, cityID primitive.ObjectID, supervisorID *primitive.ObjectID) models.Worker {
	f.t.Helper()

	now := time.Now().UTC()
	w := models.Worker{
		ID:             primitive.NewObjectID(),
		FullName:       fullName,
		FullNameCI:     text.Fold(fullName),
		NeighborhoodID: neighborhoodID,
		CityID:         cityID,
		SupervisorID:   supervisorID,
		Status:         "active",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.db.Collection("workers").InsertOne(ctx, w); err != nil {
		f.t.Fatalf("failed to create test worker: %v", err)
	}
	return w
}

// CreateInactiveWorker inserts a worker with status inactive. Inactive
// workers are ignored by the balancer.
func (f *Fixtures) CreateInactiveWorker(ctx context.Context, fullName string, neighborhoodID, cityID primitive.ObjectID, supervisorID *primitive.ObjectID) models.Worker {
	f.t.Helper()

	w := f.CreateWorker(ctx, fullName, neighborhoodID, cityID, supervisorID)
	if _, err := f.db.Collection("workers").UpdateByID(ctx, w.ID,
		map[string]any{"$set": map[string]any{"status": "inactive"}}); err != nil {
		f.t.Fatalf("failed to deactivate worker: %v", err)
	}
	w.Status = "inactive"
	return w
}
