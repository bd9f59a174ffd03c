// Package scopepolicy resolves what slice of the Area → City → Neighborhood
// → Worker tree a signed-in user can see.
//
// Resolution rules:
//   - Super admins and admins see everything.
//   - Area managers see every city whose area is in their assigned areas.
//   - Coordinators see their assigned cities.
//   - Supervisors see only the neighborhoods they are assigned to (junction
//     rows), which is deliberately narrower than a city.
//   - Workers see themselves.
//
// A management role with no assignments resolves to a scope with an empty
// ID set, which matches zero rows. That is never an error: it is the
// correct answer for a user who has not been given territory yet.
package scopepolicy

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/fieldhub/internal/app/store/cities"
	"github.com/dalemusser/fieldhub/internal/app/store/supervisorassign"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
)

// Kind tags the scope variant. There is no "filter map" escape hatch:
// callers switch on the kind and use the typed ID sets.
type Kind int

const (
	// Unrestricted matches the whole tree (admin, super admin).
	Unrestricted Kind = iota
	// ByCity restricts to a set of cities (area managers, coordinators).
	ByCity
	// ByNeighborhood restricts to a set of neighborhoods (supervisors).
	ByNeighborhood
	// BySelf restricts to the user's own worker record.
	BySelf
)

// Scope is the resolved visibility of one user. Zero-length ID sets on a
// ByCity/ByNeighborhood scope are valid and match nothing.
type Scope struct {
	Kind            Kind
	CityIDs         []primitive.ObjectID
	NeighborhoodIDs []primitive.ObjectID
	WorkerID        primitive.ObjectID
}

// Resolve computes the scope for a session. Resolution is a pure function
// of the user's current assignments: calling it twice for an unchanged user
// yields the same scope. Nothing is cached.
func Resolve(ctx context.Context, db *mongo.Database, sess authz.Session) (Scope, error) {
	if sess.IsSuperAdmin || sess.Role == authz.RoleAdmin {
		return Scope{Kind: Unrestricted}, nil
	}

	switch sess.Role {
	case authz.RoleAreaManager:
		if len(sess.AreaIDs) == 0 {
			return Scope{Kind: ByCity}, nil
		}
		cityIDs, err := citystore.New(db).IDsByArea(ctx, sess.AreaIDs)
		if err != nil {
			return Scope{}, fmt.Errorf("resolve area manager cities: %w", err)
		}
		return Scope{Kind: ByCity, CityIDs: cityIDs}, nil

	case authz.RoleCoordinator:
		return Scope{Kind: ByCity, CityIDs: sess.CityIDs}, nil

	case authz.RoleSupervisor:
		nbhdIDs, err := supervisorassign.New(db).NeighborhoodIDsByUser(ctx, sess.UserID)
		if err != nil {
			return Scope{}, fmt.Errorf("resolve supervisor neighborhoods: %w", err)
		}
		return Scope{Kind: ByNeighborhood, NeighborhoodIDs: nbhdIDs}, nil

	case authz.RoleWorker:
		// A worker account without a linked worker record resolves to a
		// self scope with the nil ID, which matches nothing.
		return Scope{Kind: BySelf, WorkerID: sess.WorkerID}, nil

	default:
		// Unknown role: fail closed with an empty city scope.
		return Scope{Kind: ByCity}, nil
	}
}

// ContainsCity reports whether the scope covers the given city.
// Neighborhood and self scopes never cover a whole city.
func (s Scope) ContainsCity(cityID primitive.ObjectID) bool {
	switch s.Kind {
	case Unrestricted:
		return true
	case ByCity:
		return containsID(s.CityIDs, cityID)
	default:
		return false
	}
}

// ContainsNeighborhood reports whether the scope covers the given
// neighborhood. City scopes check the neighborhood's parent city.
func (s Scope) ContainsNeighborhood(neighborhoodID, cityID primitive.ObjectID) bool {
	switch s.Kind {
	case Unrestricted:
		return true
	case ByCity:
		return containsID(s.CityIDs, cityID)
	case ByNeighborhood:
		return containsID(s.NeighborhoodIDs, neighborhoodID)
	default:
		return false
	}
}

// ContainsWorker reports whether the scope covers a worker, given the
// worker's identifying fields.
func (s Scope) ContainsWorker(workerID, neighborhoodID, cityID primitive.ObjectID) bool {
	if s.Kind == BySelf {
		return !s.WorkerID.IsZero() && s.WorkerID == workerID
	}
	return s.ContainsNeighborhood(neighborhoodID, cityID)
}

// CityFilter returns a bson.M that restricts a cities query to the scope.
// Returns ok=false when the scope cannot see cities at all.
func (s Scope) CityFilter() (bson.M, bool) {
	switch s.Kind {
	case Unrestricted:
		return bson.M{}, true
	case ByCity:
		return bson.M{"_id": bson.M{"$in": idsOrEmpty(s.CityIDs)}}, true
	default:
		return nil, false
	}
}

// NeighborhoodFilter returns a bson.M restricting a neighborhoods query to
// the scope. City scopes filter on the parent city field.
func (s Scope) NeighborhoodFilter() (bson.M, bool) {
	switch s.Kind {
	case Unrestricted:
		return bson.M{}, true
	case ByCity:
		return bson.M{"city_id": bson.M{"$in": idsOrEmpty(s.CityIDs)}}, true
	case ByNeighborhood:
		return bson.M{"_id": bson.M{"$in": idsOrEmpty(s.NeighborhoodIDs)}}, true
	default:
		return nil, false
	}
}

// WorkerFilter returns a bson.M restricting a workers query to the scope.
// Every scope kind can see some workers, so there is no ok flag; a self
// scope with no linked worker matches nothing.
func (s Scope) WorkerFilter() bson.M {
	switch s.Kind {
	case Unrestricted:
		return bson.M{}
	case ByCity:
		return bson.M{"city_id": bson.M{"$in": idsOrEmpty(s.CityIDs)}}
	case ByNeighborhood:
		return bson.M{"neighborhood_id": bson.M{"$in": idsOrEmpty(s.NeighborhoodIDs)}}
	default:
		return bson.M{"_id": s.WorkerID}
	}
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// $in with a nil slice matches nothing, but an explicit empty array makes
// the intent obvious in logs and profiler output.
func idsOrEmpty(ids []primitive.ObjectID) []primitive.ObjectID {
	if ids == nil {
		return []primitive.ObjectID{}
	}
	return ids
}
