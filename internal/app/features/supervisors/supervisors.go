// internal/app/features/supervisors/supervisors.go
package supervisors

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/policy/accesspolicy"
	"github.com/dalemusser/fieldhub/internal/app/system/assignment"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/payload"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

type assignPayload struct {
	UserID         string `json:"user_id" validate:"required,objectid"`
	NeighborhoodID string `json:"neighborhood_id" validate:"required,objectid"`
}

// authorize loads the neighborhood and checks city-level authority over
// it. The neighborhood is returned so callers do not fetch it twice.
func (h *Handler) authorize(ctx context.Context, w http.ResponseWriter, r *http.Request, sess authz.Session, neighborhoodID primitive.ObjectID) (models.Neighborhood, bool) {
	nbhd, err := h.Neighborhoods.GetByID(ctx, neighborhoodID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "neighborhood")
			return models.Neighborhood{}, false
		}
		h.ErrLog.LogInternal(w, r, "supervisors: neighborhood lookup failed", err)
		return models.Neighborhood{}, false
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionAssignSupervisor,
		accesspolicy.Target{CityID: nbhd.CityID, NeighborhoodID: nbhd.ID})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "supervisors: policy check failed", err)
		return models.Neighborhood{}, false
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return models.Neighborhood{}, false
	}
	return nbhd, true
}

// HandleAssign attaches a supervisor to a neighborhood. If the
// neighborhood was unsupervised, its pooled workers are adopted in the
// same transaction and the adoption count is returned.
// POST /supervisors/assign
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	var p assignPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "supervisors: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}
	userID, _ := primitive.ObjectIDFromHex(p.UserID)
	neighborhoodID, _ := primitive.ObjectIDFromHex(p.NeighborhoodID)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if _, ok := h.authorize(ctx, w, r, sess, neighborhoodID); !ok {
		return
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteValidation(w, map[string]string{"user_id": "no such user"})
			return
		}
		h.ErrLog.LogInternal(w, r, "supervisors: user lookup failed", err)
		return
	}
	if u.Role != authz.RoleSupervisor {
		uierrors.WriteValidation(w, map[string]string{"user_id": "user is not a supervisor"})
		return
	}
	if u.Status != status.Active {
		uierrors.WriteValidation(w, map[string]string{"user_id": "user is disabled"})
		return
	}

	res, err := h.Balancer.Assign(ctx, assignment.Actor{UserID: sess.UserID, Name: sess.Name}, userID, neighborhoodID)
	if err != nil {
		if errors.Is(err, assignment.ErrAlreadyAssigned) {
			uierrors.WriteConflict(w, err.Error())
			return
		}
		h.ErrLog.LogInternal(w, r, "supervisors: assign failed", err)
		return
	}

	uierrors.WriteSuccess(w, map[string]any{
		"adopted_count": res.AdoptedCount,
		"batch_id":      res.BatchID,
	})
}

// HandleUnassign detaches a supervisor from a neighborhood. The response
// reports where the supervisor's active workers went: back to the pool
// when no supervisor remains, or spread across the remaining ones.
// POST /supervisors/unassign
func (h *Handler) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	var p assignPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "supervisors: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}
	userID, _ := primitive.ObjectIDFromHex(p.UserID)
	neighborhoodID, _ := primitive.ObjectIDFromHex(p.NeighborhoodID)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if _, ok := h.authorize(ctx, w, r, sess, neighborhoodID); !ok {
		return
	}

	res, err := h.Balancer.Unassign(ctx, assignment.Actor{UserID: sess.UserID, Name: sess.Name}, userID, neighborhoodID)
	if err != nil {
		if errors.Is(err, assignment.ErrNotAssigned) {
			uierrors.WriteConflict(w, err.Error())
			return
		}
		h.ErrLog.LogInternal(w, r, "supervisors: unassign failed", err)
		return
	}

	perSupervisor := make(map[string]int, len(res.PerSupervisor))
	for id, n := range res.PerSupervisor {
		perSupervisor[id.Hex()] = n
	}
	uierrors.WriteSuccess(w, map[string]any{
		"returned_count":   res.ReturnedCount,
		"reassigned_count": res.ReassignedCount,
		"per_supervisor":   perSupervisor,
		"batch_id":         res.BatchID,
	})
}

// neighborhoodSupervisor is one row of the per-neighborhood roster.
type neighborhoodSupervisor struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	ActiveLoad int    `json:"active_load"`
	AssignedAt string `json:"assigned_at"`
}

// HandleListByNeighborhood returns the supervisors covering a
// neighborhood in assignment order, each with their current active
// worker load there.
// GET /supervisors/neighborhood/{id}
func (h *Handler) HandleListByNeighborhood(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	neighborhoodID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.WriteValidation(w, map[string]string{"id": "must be a valid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, ok := h.authorize(ctx, w, r, sess, neighborhoodID); !ok {
		return
	}

	assigns, err := h.Assignments.ListByNeighborhood(ctx, neighborhoodID)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "supervisors: list failed", err)
		return
	}
	loads, err := h.Workers.CountActiveBySupervisor(ctx, neighborhoodID)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "supervisors: load count failed", err)
		return
	}

	items := make([]neighborhoodSupervisor, 0, len(assigns))
	for _, a := range assigns {
		name := ""
		if u, err := h.Users.GetByID(ctx, a.UserID); err == nil {
			name = u.FullName
		}
		items = append(items, neighborhoodSupervisor{
			UserID:     a.UserID.Hex(),
			Name:       name,
			ActiveLoad: loads[a.UserID],
			AssignedAt: a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	uierrors.WriteSuccess(w, items)
}

// HandleRemovalImpact previews an unassignment without changing anything:
// how many active workers would be re-homed and how many supervisors
// would remain to take them.
// GET /supervisors/neighborhood/{id}/impact/{userID}
func (h *Handler) HandleRemovalImpact(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	neighborhoodID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.WriteValidation(w, map[string]string{"id": "must be a valid id"})
		return
	}
	userID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		uierrors.WriteValidation(w, map[string]string{"userID": "must be a valid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, ok := h.authorize(ctx, w, r, sess, neighborhoodID); !ok {
		return
	}

	impact, err := h.Balancer.RemovalImpact(ctx, userID, neighborhoodID)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "supervisors: impact preview failed", err)
		return
	}
	uierrors.WriteSuccess(w, map[string]int{
		"affected_workers":      impact.AffectedWorkers,
		"remaining_supervisors": impact.RemainingSupervisors,
	})
}
