// internal/testutil/http.go
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/dalemusser/fieldhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TestUser represents user data for testing HTTP handlers.
type TestUser struct {
	ID           string
	Name         string
	LoginID      string
	Role         string
	IsSuperAdmin bool
	AreaIDs      []string
	CityIDs      []string
	WorkerID     string
}

// AdminUser returns a TestUser with admin role.
func AdminUser() TestUser {
	return TestUser{
		ID:      primitive.NewObjectID().Hex(),
		Name:    "Test Admin",
		LoginID: "admin@test.com",
		Role:    "admin",
	}
}

// SuperAdminUser returns a TestUser carrying the super-admin override.
func SuperAdminUser() TestUser {
	u := AdminUser()
	u.Name = "Test Super Admin"
	u.LoginID = "root@test.com"
	u.IsSuperAdmin = true
	return u
}

// AreaManagerUser returns a TestUser with areamanager role scoped to the
// given areas.
func AreaManagerUser(areaIDs ...primitive.ObjectID) TestUser {
	return TestUser{
		ID:      primitive.NewObjectID().Hex(),
		Name:    "Test Area Manager",
		LoginID: "manager@test.com",
		Role:    "areamanager",
		AreaIDs: hexIDs(areaIDs),
	}
}

// CoordinatorUser returns a TestUser with coordinator role scoped to the
// given cities.
func CoordinatorUser(cityIDs ...primitive.ObjectID) TestUser {
	return TestUser{
		ID:      primitive.NewObjectID().Hex(),
		Name:    "Test Coordinator",
		LoginID: "coordinator@test.com",
		Role:    "coordinator",
		CityIDs: hexIDs(cityIDs),
	}
}

// SupervisorUser returns a TestUser with supervisor role. Neighborhood
// assignments live in the junction collection, so callers who need them
// must insert assignment rows via Fixtures.
func SupervisorUser() TestUser {
	return TestUser{
		ID:      primitive.NewObjectID().Hex(),
		Name:    "Test Supervisor",
		LoginID: "supervisor@test.com",
		Role:    "supervisor",
	}
}

// WorkerUser returns a TestUser linked to the given worker document.
func WorkerUser(workerID primitive.ObjectID) TestUser {
	return TestUser{
		ID:       primitive.NewObjectID().Hex(),
		Name:     "Test Worker",
		LoginID:  "worker@test.com",
		Role:     "worker",
		WorkerID: workerID.Hex(),
	}
}

// WithUser adds a user to the request context for testing authenticated handlers.
// This bypasses the session middleware and injects the user directly.
func WithUser(r *http.Request, user TestUser) *http.Request {
	sessionUser := &auth.SessionUser{
		ID:           user.ID,
		Name:         user.Name,
		LoginID:      user.LoginID,
		Role:         user.Role,
		IsSuperAdmin: user.IsSuperAdmin,
		AreaIDs:      user.AreaIDs,
		CityIDs:      user.CityIDs,
		WorkerID:     user.WorkerID,
	}
	return auth.WithTestUser(r, sessionUser)
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

// NewAuthenticatedRequest creates an HTTP request with a user in context.
func NewAuthenticatedRequest(method, target string, user TestUser) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return WithUser(req, user)
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d", r.Code, expected)
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}

func hexIDs(ids []primitive.ObjectID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}
