// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/fieldhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is the resolved, explicit user context the engine packages take
// as a parameter. Nothing below the HTTP layer reads ambient request state:
// handlers build a Session once and pass it down.
type Session struct {
	UserID       primitive.ObjectID
	Name         string
	Role         string
	IsSuperAdmin bool

	AreaIDs  []primitive.ObjectID // areamanager
	CityIDs  []primitive.ObjectID // coordinator
	WorkerID primitive.ObjectID   // worker; NilObjectID otherwise
}

// FromRequest converts the session user in the request context into an
// engine Session. Malformed IDs in the session fail closed: the request is
// treated as unauthenticated.
func FromRequest(r *http.Request) (Session, bool) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		return Session{}, false
	}
	uid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return Session{}, false
	}

	s := Session{
		UserID:       uid,
		Name:         u.Name,
		Role:         strings.ToLower(u.Role),
		IsSuperAdmin: u.IsSuperAdmin,
		AreaIDs:      hexToObjectIDs(u.AreaIDs),
		CityIDs:      hexToObjectIDs(u.CityIDs),
	}
	if u.WorkerID != "" {
		if wid, err := primitive.ObjectIDFromHex(u.WorkerID); err == nil {
			s.WorkerID = wid
		}
	}
	return s, true
}

// UserCtx returns the user's role (lowercased), name, ObjectID, and a found
// flag. Malformed session IDs fail closed with role "visitor".
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	s, ok := FromRequest(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	return s.Role, s.Name, s.UserID, true
}

// IsSuperAdmin reports whether the current request's user carries the
// super-admin override flag.
func IsSuperAdmin(r *http.Request) bool {
	u, ok := auth.CurrentUser(r)
	return ok && u.IsSuperAdmin
}

// IsAdmin reports whether the current request's user is an admin.
// Super admins count as admins for permission purposes.
func IsAdmin(r *http.Request) bool {
	u, ok := auth.CurrentUser(r)
	return ok && (u.IsSuperAdmin || strings.ToLower(u.Role) == RoleAdmin)
}

// HasAnyRole reports whether the current request's user has any of the
// given roles. Returns false if no user is present.
func HasAnyRole(r *http.Request, roles ...string) bool {
	role, _, _, ok := UserCtx(r)
	if !ok {
		return false
	}
	for _, want := range roles {
		if role == strings.ToLower(strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}

func hexToObjectIDs(hexes []string) []primitive.ObjectID {
	if len(hexes) == 0 {
		return nil
	}
	out := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		if oid, err := primitive.ObjectIDFromHex(h); err == nil {
			out = append(out, oid)
		}
	}
	return out
}
