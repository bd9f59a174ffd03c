// Package accesspolicy decides whether a user may perform a mutating
// action on a point in the Area → City → Neighborhood → Worker tree.
//
// Creation rules, by role:
//   - admin: everything.
//   - areamanager: cities inside their areas and everything below.
//   - coordinator: neighborhoods inside their cities and everything below.
//   - supervisor: workers inside their assigned neighborhoods only.
//   - worker: nothing except their own check-in.
//
// The super-admin flag bypasses every check. An ordinary denial is a
// Decision with a reason, never an error; errors mean the check itself
// could not run.
//
// Every mutation handler calls this at the boundary even when the route is
// already role-gated. Any client that hides buttons does so separately.
package accesspolicy

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/fieldhub/internal/app/policy/scopepolicy"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
)

// Action names one guarded operation.
type Action string

const (
	ActionManageAreas        Action = "areas.manage"
	ActionCreateCity         Action = "cities.create"
	ActionManageCity         Action = "cities.manage"
	ActionCreateNeighborhood Action = "neighborhoods.create"
	ActionManageNeighborhood Action = "neighborhoods.manage"
	ActionCreateWorker       Action = "workers.create"
	ActionManageWorker       Action = "workers.manage"
	ActionAssignSupervisor   Action = "supervisors.assign"
	ActionRecordAttendance   Action = "attendance.record"
	ActionViewAudit          Action = "audit.view"
)

// Target identifies the tree position an action applies to. Only the
// fields relevant to the action need to be set: creating a city needs
// AreaID, creating a neighborhood needs CityID, worker actions need
// NeighborhoodID + CityID (and WorkerID for attendance).
type Target struct {
	AreaID         primitive.ObjectID
	CityID         primitive.ObjectID
	NeighborhoodID primitive.ObjectID
	WorkerID       primitive.ObjectID
}

// Decision is a structured allow/deny. Reason is set only on denial and is
// safe to return to the client.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// CanPerform decides whether the session's user may perform action on
// target. Scope-dependent checks resolve the user's scope on demand.
func CanPerform(ctx context.Context, db *mongo.Database, sess authz.Session, action Action, target Target) (Decision, error) {
	if sess.IsSuperAdmin {
		return allow(), nil
	}

	switch action {
	case ActionManageAreas:
		if sess.Role == authz.RoleAdmin {
			return allow(), nil
		}
		return deny("only admins manage areas"), nil

	case ActionCreateCity, ActionManageCity:
		switch sess.Role {
		case authz.RoleAdmin:
			return allow(), nil
		case authz.RoleAreaManager:
			if target.AreaID.IsZero() {
				return deny("city has no area; only admins manage unassigned cities"), nil
			}
			for _, id := range sess.AreaIDs {
				if id == target.AreaID {
					return allow(), nil
				}
			}
			return deny("city is outside your areas"), nil
		default:
			return deny("your role cannot manage cities"), nil
		}

	case ActionCreateNeighborhood, ActionManageNeighborhood, ActionAssignSupervisor:
		// Supervisor assignment is a neighborhood-level decision, so it
		// shares the neighborhood management gate: you need city-level
		// authority over the neighborhood's city. Supervisors themselves
		// cannot grow or shrink their own territory.
		switch sess.Role {
		case authz.RoleAdmin:
			return allow(), nil
		case authz.RoleAreaManager, authz.RoleCoordinator:
			scope, err := scopepolicy.Resolve(ctx, db, sess)
			if err != nil {
				return Decision{}, fmt.Errorf("resolve scope: %w", err)
			}
			if scope.ContainsCity(target.CityID) {
				return allow(), nil
			}
			return deny("neighborhood is outside your cities"), nil
		default:
			if action == ActionAssignSupervisor {
				return deny("your role cannot change supervisor assignments"), nil
			}
			return deny("your role cannot manage neighborhoods"), nil
		}

	case ActionCreateWorker, ActionManageWorker:
		switch sess.Role {
		case authz.RoleAdmin:
			return allow(), nil
		case authz.RoleAreaManager, authz.RoleCoordinator, authz.RoleSupervisor:
			scope, err := scopepolicy.Resolve(ctx, db, sess)
			if err != nil {
				return Decision{}, fmt.Errorf("resolve scope: %w", err)
			}
			if scope.ContainsNeighborhood(target.NeighborhoodID, target.CityID) {
				return allow(), nil
			}
			return deny("worker is outside your territory"), nil
		default:
			return deny("your role cannot manage workers"), nil
		}

	case ActionRecordAttendance:
		switch sess.Role {
		case authz.RoleAdmin:
			return allow(), nil
		case authz.RoleAreaManager, authz.RoleCoordinator, authz.RoleSupervisor:
			scope, err := scopepolicy.Resolve(ctx, db, sess)
			if err != nil {
				return Decision{}, fmt.Errorf("resolve scope: %w", err)
			}
			if scope.ContainsWorker(target.WorkerID, target.NeighborhoodID, target.CityID) {
				return allow(), nil
			}
			return deny("worker is outside your territory"), nil
		case authz.RoleWorker:
			if !sess.WorkerID.IsZero() && sess.WorkerID == target.WorkerID {
				return allow(), nil
			}
			return deny("workers can only record their own attendance"), nil
		default:
			return deny("your role cannot record attendance"), nil
		}

	case ActionViewAudit:
		switch sess.Role {
		case authz.RoleAdmin, authz.RoleAreaManager:
			return allow(), nil
		default:
			return deny("your role cannot view the audit log"), nil
		}

	default:
		return Decision{}, fmt.Errorf("unknown action %q", action)
	}
}

// CanManageUser decides whether the session's user may create, edit, or
// disable an account carrying the given role and scope grants. The rule
// mirrors the tree: an actor only manages accounts whose role sits below
// their own, and only grants scope they themselves hold.
//
// areaIDs and cityIDs are the grants the account would end up with, not
// the actor's own.
func CanManageUser(ctx context.Context, db *mongo.Database, sess authz.Session, role string, areaIDs, cityIDs []primitive.ObjectID) (Decision, error) {
	if sess.IsSuperAdmin {
		return allow(), nil
	}

	switch sess.Role {
	case authz.RoleAdmin:
		return allow(), nil

	case authz.RoleAreaManager:
		switch role {
		case authz.RoleCoordinator, authz.RoleSupervisor, authz.RoleWorker:
		default:
			return deny("area managers only manage coordinator, supervisor, and worker accounts"), nil
		}
		if len(areaIDs) > 0 {
			return deny("only admins grant area assignments"), nil
		}
		if len(cityIDs) > 0 {
			scope, err := scopepolicy.Resolve(ctx, db, sess)
			if err != nil {
				return Decision{}, fmt.Errorf("resolve scope: %w", err)
			}
			for _, id := range cityIDs {
				if !scope.ContainsCity(id) {
					return deny("granted city is outside your areas"), nil
				}
			}
		}
		return allow(), nil

	case authz.RoleCoordinator:
		switch role {
		case authz.RoleSupervisor, authz.RoleWorker:
		default:
			return deny("coordinators only manage supervisor and worker accounts"), nil
		}
		if len(areaIDs) > 0 || len(cityIDs) > 0 {
			return deny("coordinators cannot grant area or city assignments"), nil
		}
		return allow(), nil

	default:
		return deny("your role cannot manage accounts"), nil
	}
}
