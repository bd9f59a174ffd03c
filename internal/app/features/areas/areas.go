// internal/app/features/areas/areas.go
package areas

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
	areastore "github.com/dalemusser/fieldhub/internal/app/store/areas"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/payload"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/textsanitize"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/app/system/txn"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

// HandleList returns the areas the caller can see: admins every active
// area, area managers only their own.
// GET /areas
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var (
		list []models.Area
		err  error
	)
	switch {
	case sess.IsSuperAdmin || sess.Role == authz.RoleAdmin:
		list, err = h.Areas.ListActive(ctx)
	case sess.Role == authz.RoleAreaManager:
		list, err = h.Areas.GetByIDs(ctx, sess.AreaIDs)
	default:
		uierrors.WriteForbidden(w, "areas are visible to admins and area managers only")
		return
	}
	if err != nil {
		h.ErrLog.LogInternal(w, r, "areas: list failed", err)
		return
	}
	uierrors.WriteSuccess(w, list)
}

type createPayload struct {
	Name string `json:"name" validate:"required,max=200"`
}

// HandleCreate creates an area. Admin only.
// POST /areas
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	var p createPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "areas: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionManageAreas, accesspolicy.Target{})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "areas: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	var a models.Area
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		created, err := h.Areas.Create(ctx, models.Area{
			Name:   textsanitize.Plain(p.Name),
			Status: status.Active,
		})
		if err != nil {
			return err
		}
		a = created
		return h.AuditLog.EntityCreated(ctx, sess.UserID, audit.EventAreaCreated, "area", a.ID, nil,
			bson.M{"name": a.Name})
	})
	if err != nil {
		if errors.Is(err, areastore.ErrDuplicateArea) {
			uierrors.WriteConflict(w, err.Error())
			return
		}
		h.ErrLog.LogInternal(w, r, "areas: create failed", err)
		return
	}

	uierrors.WriteSuccess(w, a)
}

type updatePayload struct {
	Name   string `json:"name" validate:"omitempty,max=200"`
	Status string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// HandleUpdate renames an area or changes its status. Admin only.
// PUT /areas/{id}
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
		h.ErrLog.LogBadRequest(w, r, "areas: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionManageAreas, accesspolicy.Target{AreaID: id})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "areas: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	before, err := h.Areas.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "area")
			return
		}
		h.ErrLog.LogInternal(w, r, "areas: lookup failed", err)
		return
	}

	upd := models.Area{Name: textsanitize.Plain(p.Name), Status: p.Status}
	var after models.Area
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := h.Areas.Update(ctx, id, upd); err != nil {
			return err
		}
		reloaded, err := h.Areas.GetByID(ctx, id)
		if err != nil {
			return err
		}
		after = reloaded
		return h.AuditLog.EntityUpdated(ctx, sess.UserID, audit.EventAreaUpdated, "area", id, nil,
			bson.M{"name": before.Name, "status": before.Status},
			bson.M{"name": after.Name, "status": after.Status})
	})
	if err != nil {
		if errors.Is(err, areastore.ErrDuplicateArea) {
			uierrors.WriteConflict(w, err.Error())
			return
		}
		h.ErrLog.LogInternal(w, r, "areas: update failed", err)
		return
	}

	uierrors.WriteSuccess(w, after)
}

type setManagerPayload struct {
	// ManagerID empty clears the assignment.
	ManagerID string `json:"manager_id" validate:"omitempty,objectid"`
}

// HandleSetManager assigns or clears the area's manager. The manager's
// own area list is kept in step inside the same transaction, since it is
// what scope resolution reads.
// PUT /areas/{id}/manager
func (h *Handler) HandleSetManager(w http.ResponseWriter, r *http.Request) {
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

	var p setManagerPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "areas: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionManageAreas, accesspolicy.Target{AreaID: id})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "areas: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	area, err := h.Areas.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "area")
			return
		}
		h.ErrLog.LogInternal(w, r, "areas: lookup failed", err)
		return
	}

	var newManager *primitive.ObjectID
	if p.ManagerID != "" {
		mid, _ := primitive.ObjectIDFromHex(p.ManagerID)
		u, err := h.Users.GetByID(ctx, mid)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				uierrors.WriteValidation(w, map[string]string{"manager_id": "no such user"})
				return
			}
			h.ErrLog.LogInternal(w, r, "areas: manager lookup failed", err)
			return
		}
		if u.Role != authz.RoleAreaManager {
			uierrors.WriteValidation(w, map[string]string{"manager_id": "user is not an area manager"})
			return
		}
		if u.Status != status.Active {
			uierrors.WriteValidation(w, map[string]string{"manager_id": "user is disabled"})
			return
		}
		newManager = &mid
	}

	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := h.Areas.SetManager(ctx, id, newManager); err != nil {
			return err
		}
		if area.ManagerID != nil {
			if err := h.Users.RemoveAreaID(ctx, *area.ManagerID, id); err != nil {
				return err
			}
		}
		if newManager != nil {
			if err := h.Users.AddAreaID(ctx, *newManager, id); err != nil {
				return err
			}
		}
		return h.AuditLog.EntityUpdated(ctx, sess.UserID, audit.EventAreaUpdated, "area", id, nil,
			bson.M{"manager_id": hexOrEmpty(area.ManagerID)},
			bson.M{"manager_id": hexOrEmpty(newManager)})
	})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "areas: set manager failed", err)
		return
	}

	after, err := h.Areas.GetByID(ctx, id)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "areas: reload failed", err)
		return
	}
	uierrors.WriteSuccess(w, after)
}

// HandleDelete removes an empty area. Areas that still contain cities
// cannot be deleted; managers assigned to the area have it pulled from
// their scope in the same transaction. Admin only.
// DELETE /areas/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	if !sess.IsSuperAdmin && sess.Role != authz.RoleAdmin {
		uierrors.WriteForbidden(w, "only admins may delete areas")
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.WriteValidation(w, map[string]string{"id": "must be a valid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	before, err := h.Areas.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "area")
			return
		}
		h.ErrLog.LogInternal(w, r, "areas: lookup failed", err)
		return
	}

	cityIDs, err := h.Cities.IDsByArea(ctx, []primitive.ObjectID{id})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "areas: city check failed", err)
		return
	}
	if len(cityIDs) > 0 {
		uierrors.WriteConflict(w, "area still has cities; move or delete them first")
		return
	}

	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		n, err := h.Areas.Delete(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return mongo.ErrNoDocuments
		}
		if err := h.Users.RemoveAreaIDFromAll(ctx, id); err != nil {
			return err
		}
		return h.AuditLog.EntityDeleted(ctx, sess.UserID, audit.EventAreaDeleted, "area", id, nil,
			bson.M{"name": before.Name, "manager_id": hexOrEmpty(before.ManagerID)})
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "area")
			return
		}
		h.ErrLog.LogInternal(w, r, "areas: delete failed", err)
		return
	}

	uierrors.WriteSuccess(w, map[string]string{"deleted": id.Hex()})
}

func hexOrEmpty(id *primitive.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}
