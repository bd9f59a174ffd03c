// internal/app/features/workers/orphans.go
package workers

import (
	"context"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dalemusser/waffle/pantry/query"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/system/assignment"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

// HandleOrphans lists active workers that have no supervisor even though
// their neighborhood is supervised. These only appear after external data
// edits; steady-state operation keeps the list empty. Admin only.
// GET /workers/orphans?neighborhood_id=...
func (h *Handler) HandleOrphans(w http.ResponseWriter, r *http.Request) {
	if !authz.IsAdmin(r) {
		uierrors.WriteForbidden(w, "integrity checks are admin only")
		return
	}

	neighborhoodID := primitive.NilObjectID
	if nid := query.Get(r, "neighborhood_id"); nid != "" {
		id, err := primitive.ObjectIDFromHex(nid)
		if err != nil {
			uierrors.WriteValidation(w, map[string]string{"neighborhood_id": "must be a valid id"})
			return
		}
		neighborhoodID = id
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	orphans, err := h.Balancer.FindOrphanWorkers(ctx, neighborhoodID)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: orphan scan failed", err)
		return
	}
	if orphans == nil {
		orphans = []models.Worker{}
	}
	uierrors.WriteSuccess(w, map[string]any{
		"count":   len(orphans),
		"orphans": orphans,
	})
}

// HandleRepairOrphans adopts every orphan into its neighborhood's
// least-loaded supervisor, one batch per neighborhood. Admin only.
// POST /workers/orphans/repair
func (h *Handler) HandleRepairOrphans(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	if !authz.IsAdmin(r) {
		uierrors.WriteForbidden(w, "integrity repairs are admin only")
		return
	}

	neighborhoodID := primitive.NilObjectID
	if nid := query.Get(r, "neighborhood_id"); nid != "" {
		id, err := primitive.ObjectIDFromHex(nid)
		if err != nil {
			uierrors.WriteValidation(w, map[string]string{"neighborhood_id": "must be a valid id"})
			return
		}
		neighborhoodID = id
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	repaired, err := h.Balancer.RepairOrphans(ctx, assignment.Actor{UserID: sess.UserID, Name: sess.Name}, neighborhoodID)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: orphan repair failed", err)
		return
	}
	uierrors.WriteSuccess(w, map[string]int{"repaired": repaired})
}
