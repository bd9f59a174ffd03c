// internal/app/features/workers/list.go
package workers

import (
	"context"
	"net/http"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/text"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/policy/scopepolicy"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/paging"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

type listResponse struct {
	Workers    []models.Worker `json:"workers"`
	HasPrev    bool            `json:"has_prev"`
	HasNext    bool            `json:"has_next"`
	PrevCursor string          `json:"prev_cursor,omitempty"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// HandleList returns a keyset-paged worker roster restricted to the
// caller's scope. Optional query params: neighborhood_id, status, search
// (folded name prefix), and before/after cursors.
// GET /workers
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	scope, err := scopepolicy.Resolve(ctx, h.DB, sess)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: scope resolve failed", err)
		return
	}
	filter := scope.WorkerFilter()

	if nid := query.Get(r, "neighborhood_id"); nid != "" {
		id, err := primitive.ObjectIDFromHex(nid)
		if err != nil {
			uierrors.WriteValidation(w, map[string]string{"neighborhood_id": "must be a valid id"})
			return
		}
		// The scope filter may already key on neighborhood_id, so the
		// requested neighborhood must be proven in-scope before it
		// replaces that clause.
		nbhd, err := h.Neighborhoods.GetByID(ctx, id)
		if err != nil {
			uierrors.WriteNotFound(w, "neighborhood")
			return
		}
		if !scope.ContainsNeighborhood(nbhd.ID, nbhd.CityID) {
			uierrors.WriteForbidden(w, "neighborhood is outside your territory")
			return
		}
		filter["neighborhood_id"] = id
		delete(filter, "city_id")
	}
	if st := query.Get(r, "status"); st != "" {
		if st != status.Active && st != status.Inactive {
			uierrors.WriteValidation(w, map[string]string{"status": "must be active or inactive"})
			return
		}
		filter["status"] = st
	}
	if search := query.Get(r, "search"); search != "" {
		filter["full_name_ci"] = bson.M{"$regex": primitive.Regex{
			Pattern: "^" + regexp.QuoteMeta(text.Fold(search)),
		}}
	}

	before := query.Get(r, "before")
	after := query.Get(r, "after")
	cfg := paging.ConfigureKeyset(before, after)
	if window := cfg.KeysetWindow("full_name_ci"); window != nil {
		for k, v := range window {
			filter[k] = v
		}
	}

	find := options.Find()
	cfg.ApplyToFind(find, "full_name_ci")

	rows, err := h.Workers.Page(ctx, filter, find)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: list failed", err)
		return
	}

	res := paging.TrimPage(&rows, before, after)
	if cfg.Direction == paging.Backward {
		paging.Reverse(rows)
	}
	prev, next := paging.BuildCursors(rows,
		func(w models.Worker) string { return w.FullNameCI },
		func(w models.Worker) primitive.ObjectID { return w.ID })

	if rows == nil {
		rows = []models.Worker{}
	}
	uierrors.WriteSuccess(w, listResponse{
		Workers:    rows,
		HasPrev:    res.HasPrev,
		HasNext:    res.HasNext,
		PrevCursor: prev,
		NextCursor: next,
	})
}
