// internal/app/features/cities/cities.go
package cities

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
	citystore "github.com/dalemusser/fieldhub/internal/app/store/cities"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/payload"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/textsanitize"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/app/system/timezones"
	"github.com/dalemusser/fieldhub/internal/app/system/txn"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

// HandleList returns the cities inside the caller's scope.
// GET /cities
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	scope, err := scopepolicy.Resolve(ctx, h.DB, sess)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: scope resolve failed", err)
		return
	}

	var list []models.City
	switch scope.Kind {
	case scopepolicy.Unrestricted:
		list, err = h.Cities.ListActive(ctx)
	case scopepolicy.ByCity:
		list, err = h.Cities.GetByIDs(ctx, scope.CityIDs)
	default:
		uierrors.WriteForbidden(w, "cities are visible to admins, area managers, and coordinators only")
		return
	}
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: list failed", err)
		return
	}
	uierrors.WriteSuccess(w, list)
}

// HandleTimeZones returns the time zones a city may be assigned.
// GET /cities/timezones
func (h *Handler) HandleTimeZones(w http.ResponseWriter, r *http.Request) {
	zones, err := timezones.All()
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: time zone list failed", err)
		return
	}
	uierrors.WriteSuccess(w, zones)
}

type createPayload struct {
	Name     string `json:"name" validate:"required,max=200"`
	AreaID   string `json:"area_id" validate:"omitempty,objectid"`
	TimeZone string `json:"time_zone" validate:"omitempty,max=64"`
}

// HandleCreate creates a city, optionally attached to an area. Area
// managers must name an area they manage; admins may leave it unattached.
// POST /cities
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	var p createPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "cities: bad payload", err, "invalid request body")
		return
	}
	if p.TimeZone != "" && !timezones.Valid(p.TimeZone) {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["time_zone"] = "must be one of the supported time zones"
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var areaID *primitive.ObjectID
	target := accesspolicy.Target{}
	if p.AreaID != "" {
		aid, _ := primitive.ObjectIDFromHex(p.AreaID)
		areaID = &aid
		target.AreaID = aid
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionCreateCity, target)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	var city models.City
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		created, err := h.Cities.Create(ctx, models.City{
			Name:     textsanitize.Plain(p.Name),
			AreaID:   areaID,
			TimeZone: p.TimeZone,
			Status:   status.Active,
		})
		if err != nil {
			return err
		}
		city = created
		return h.AuditLog.EntityCreated(ctx, sess.UserID, audit.EventCityCreated, "city", city.ID, &city.ID,
			bson.M{"name": city.Name, "area_id": hexOrEmpty(city.AreaID)})
	})
	if err != nil {
		if errors.Is(err, citystore.ErrDuplicateCity) {
			uierrors.WriteConflict(w, err.Error())
			return
		}
		h.ErrLog.LogInternal(w, r, "cities: create failed", err)
		return
	}

	uierrors.WriteSuccess(w, city)
}

type updatePayload struct {
	Name     string `json:"name" validate:"omitempty,max=200"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
	TimeZone string `json:"time_zone" validate:"omitempty,max=64"`
}

// HandleUpdate renames a city or changes its status or time zone.
// PUT /cities/{id}
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
		h.ErrLog.LogBadRequest(w, r, "cities: bad payload", err, "invalid request body")
		return
	}
	if p.TimeZone != "" && !timezones.Valid(p.TimeZone) {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["time_zone"] = "must be one of the supported time zones"
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	before, err := h.Cities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "city")
			return
		}
		h.ErrLog.LogInternal(w, r, "cities: lookup failed", err)
		return
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionManageCity, targetForCity(before))
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	upd := models.City{Name: textsanitize.Plain(p.Name), Status: p.Status, TimeZone: p.TimeZone}
	var after models.City
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := h.Cities.Update(ctx, id, upd); err != nil {
			return err
		}
		reloaded, err := h.Cities.GetByID(ctx, id)
		if err != nil {
			return err
		}
		after = reloaded
		return h.AuditLog.EntityUpdated(ctx, sess.UserID, audit.EventCityUpdated, "city", id, &id,
			bson.M{"name": before.Name, "status": before.Status, "time_zone": before.TimeZone},
			bson.M{"name": after.Name, "status": after.Status, "time_zone": after.TimeZone})
	})
	if err != nil {
		if errors.Is(err, citystore.ErrDuplicateCity) {
			uierrors.WriteConflict(w, err.Error())
			return
		}
		h.ErrLog.LogInternal(w, r, "cities: update failed", err)
		return
	}

	uierrors.WriteSuccess(w, after)
}

type setAreaPayload struct {
	// AreaID empty detaches the city from its area.
	AreaID string `json:"area_id" validate:"omitempty,objectid"`
}

// HandleSetArea moves a city under a different area (or detaches it).
// Non-admins must manage both the city and the destination area.
// PUT /cities/{id}/area
func (h *Handler) HandleSetArea(w http.ResponseWriter, r *http.Request) {
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

	var p setAreaPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "cities: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	before, err := h.Cities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "city")
			return
		}
		h.ErrLog.LogInternal(w, r, "cities: lookup failed", err)
		return
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionManageCity, targetForCity(before))
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	var areaID *primitive.ObjectID
	if p.AreaID != "" {
		aid, _ := primitive.ObjectIDFromHex(p.AreaID)
		// The destination area must also be within the caller's reach.
		destDec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionCreateCity, accesspolicy.Target{AreaID: aid})
		if err != nil {
			h.ErrLog.LogInternal(w, r, "cities: policy check failed", err)
			return
		}
		if !destDec.Allowed {
			uierrors.WriteForbidden(w, destDec.Reason)
			return
		}
		areaID = &aid
	} else if !sess.IsSuperAdmin && sess.Role != authz.RoleAdmin {
		uierrors.WriteForbidden(w, "only admins may detach a city from its area")
		return
	}

	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := h.Cities.SetArea(ctx, id, areaID); err != nil {
			return err
		}
		return h.AuditLog.EntityUpdated(ctx, sess.UserID, audit.EventCityUpdated, "city", id, &id,
			bson.M{"area_id": hexOrEmpty(before.AreaID)},
			bson.M{"area_id": hexOrEmpty(areaID)})
	})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: set area failed", err)
		return
	}

	after, err := h.Cities.GetByID(ctx, id)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: reload failed", err)
		return
	}
	uierrors.WriteSuccess(w, after)
}

// HandleDelete removes an empty city. Cities that still contain
// neighborhoods cannot be deleted; coordinators pointing at the city have
// it pulled from their scope in the same transaction.
// DELETE /cities/{id}
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

	before, err := h.Cities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "city")
			return
		}
		h.ErrLog.LogInternal(w, r, "cities: lookup failed", err)
		return
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionManageCity, targetForCity(before))
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	nbhdIDs, err := h.Neighborhoods.IDsByCity(ctx, []primitive.ObjectID{id})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "cities: neighborhood check failed", err)
		return
	}
	if len(nbhdIDs) > 0 {
		uierrors.WriteConflict(w, "city still has neighborhoods; move or delete them first")
		return
	}

	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		n, err := h.Cities.Delete(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return mongo.ErrNoDocuments
		}
		if err := h.Users.RemoveCityIDFromAll(ctx, id); err != nil {
			return err
		}
		return h.AuditLog.EntityDeleted(ctx, sess.UserID, audit.EventCityDeleted, "city", id, &id,
			bson.M{"name": before.Name, "area_id": hexOrEmpty(before.AreaID)})
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "city")
			return
		}
		h.ErrLog.LogInternal(w, r, "cities: delete failed", err)
		return
	}

	uierrors.WriteSuccess(w, map[string]string{"deleted": id.Hex()})
}

func targetForCity(c models.City) accesspolicy.Target {
	t := accesspolicy.Target{CityID: c.ID}
	if c.AreaID != nil {
		t.AreaID = *c.AreaID
	}
	return t
}

func hexOrEmpty(id *primitive.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}
