// internal/app/features/neighborhoods/neighborhoods.go
package neighborhoods

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/policy/accesspolicy"
	"github.com/dalemusser/fieldhub/internal/app/policy/scopepolicy"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	neighborhoodstore "github.com/dalemusser/fieldhub/internal/app/store/neighborhoods"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/payload"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/textsanitize"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/app/system/txn"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

// listItem is a neighborhood plus how many supervisors currently cover
// it. Zero supervisors means its workers sit in the unassigned pool.
type listItem struct {
	models.Neighborhood
	SupervisorCount int64 `json:"supervisor_count"`
}

// HandleListByCity returns the neighborhoods of one city, each with its
// supervisor count. Supervisors see only the neighborhoods assigned to
// them.
// GET /neighborhoods/city/{cityID}
func (h *Handler) HandleListByCity(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	cityID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "cityID"))
	if err != nil {
		uierrors.WriteValidation(w, map[string]string{"cityID": "must be a valid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	scope, err := scopepolicy.Resolve(ctx, h.DB, sess)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "neighborhoods: scope resolve failed", err)
		return
	}

	switch scope.Kind {
	case scopepolicy.Unrestricted:
	case scopepolicy.ByCity:
		if !scope.ContainsCity(cityID) {
			uierrors.WriteForbidden(w, "city is outside your territory")
			return
		}
	case scopepolicy.ByNeighborhood:
	default:
		uierrors.WriteForbidden(w, "your role cannot browse neighborhoods")
		return
	}

	list, err := h.Neighborhoods.ListByCity(ctx, cityID)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "neighborhoods: list failed", err)
		return
	}

	items := make([]listItem, 0, len(list))
	for _, n := range list {
		if scope.Kind == scopepolicy.ByNeighborhood && !scope.ContainsNeighborhood(n.ID, n.CityID) {
			continue
		}
		count, err := h.Assignments.CountByNeighborhood(ctx, n.ID)
		if err != nil {
			h.ErrLog.LogInternal(w, r, "neighborhoods: supervisor count failed", err)
			return
		}
		items = append(items, listItem{Neighborhood: n, SupervisorCount: count})
	}
	uierrors.WriteSuccess(w, items)
}

type createPayload struct {
	Name   string `json:"name" validate:"required,max=200"`
	CityID string `json:"city_id" validate:"required,objectid"`
}

// HandleCreate creates a neighborhood inside a city the caller manages.
// POST /neighborhoods
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	var p createPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "neighborhoods: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}
	cityID, _ := primitive.ObjectIDFromHex(p.CityID)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionCreateNeighborhood, accesspolicy.Target{CityID: cityID})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "neighborhoods: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	var n models.Neighborhood
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		created, err := h.Neighborhoods.Create(ctx, models.Neighborhood{
			Name:   textsanitize.Plain(p.Name),
			CityID: cityID,
			Status: status.Active,
		})
		if err != nil {
			return err
		}
		n = created
		return h.AuditLog.EntityCreated(ctx, sess.UserID, audit.EventNeighborhoodCreated, "neighborhood", n.ID, &n.CityID,
			bson.M{"name": n.Name, "city_id": n.CityID.Hex()})
	})
	if err != nil {
		if errors.Is(err, neighborhoodstore.ErrDuplicateNeighborhood) {
			uierrors.WriteConflict(w, err.Error())
			return
		}
		h.ErrLog.LogInternal(w, r, "neighborhoods: create failed", err)
		return
	}

	uierrors.WriteSuccess(w, n)
}

type updatePayload struct {
	Name   string `json:"name" validate:"omitempty,max=200"`
	Status string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// HandleUpdate renames a neighborhood or changes its status.
// PUT /neighborhoods/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.WriteValidation(w, map[string]string{"id": "must be a valid id"})
		return
	}

	var p updatePayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "neighborhoods: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	before, err := h.Neighborhoods.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "neighborhood")
			return
		}
		h.ErrLog.LogInternal(w, r, "neighborhoods: lookup failed", err)
		return
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionManageNeighborhood, accesspolicy.Target{CityID: before.CityID, NeighborhoodID: id})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "neighborhoods: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	upd := models.Neighborhood{Name: textsanitize.Plain(p.Name), Status: p.Status}
	var after models.Neighborhood
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := h.Neighborhoods.Update(ctx, id, upd); err != nil {
			return err
		}
		reloaded, err := h.Neighborhoods.GetByID(ctx, id)
		if err != nil {
			return err
		}
		after = reloaded
		return h.AuditLog.EntityUpdated(ctx, sess.UserID, audit.EventNeighborhoodUpdated, "neighborhood", id, &before.CityID,
			bson.M{"name": before.Name, "status": before.Status},
			bson.M{"name": after.Name, "status": after.Status})
	})
	if err != nil {
		if errors.Is(err, neighborhoodstore.ErrDuplicateNeighborhood) {
			uierrors.WriteConflict(w, err.Error())
			return
		}
		h.ErrLog.LogInternal(w, r, "neighborhoods: update failed", err)
		return
	}

	uierrors.WriteSuccess(w, after)
}

// HandleDelete removes a neighborhood that has no workers. Supervisor
// assignments still covering it are removed in the same transaction.
// DELETE /neighborhoods/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.WriteValidation(w, map[string]string{"id": "must be a valid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	before, err := h.Neighborhoods.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "neighborhood")
			return
		}
		h.ErrLog.LogInternal(w, r, "neighborhoods: lookup failed", err)
		return
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionManageNeighborhood, accesspolicy.Target{CityID: before.CityID, NeighborhoodID: id})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "neighborhoods: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	remaining, err := h.Workers.List(ctx, bson.M{"neighborhood_id": id}, 1)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "neighborhoods: worker check failed", err)
		return
	}
	if len(remaining) > 0 {
		uierrors.WriteConflict(w, "neighborhood still has workers; move or delete them first")
		return
	}

	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		n, err := h.Neighborhoods.Delete(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return mongo.ErrNoDocuments
		}
		if _, err := h.Assignments.DeleteByNeighborhood(ctx, id); err != nil {
			return err
		}
		return h.AuditLog.EntityDeleted(ctx, sess.UserID, audit.EventNeighborhoodDeleted, "neighborhood", id, &before.CityID,
			bson.M{"name": before.Name, "city_id": before.CityID.Hex()})
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "neighborhood")
			return
		}
		h.ErrLog.LogInternal(w, r, "neighborhoods: delete failed", err)
		return
	}

	uierrors.WriteSuccess(w, map[string]string{"deleted": id.Hex()})
}
