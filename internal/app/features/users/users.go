// internal/app/features/users/users.go
package users

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
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	userstore "github.com/dalemusser/fieldhub/internal/app/store/users"
	"github.com/dalemusser/fieldhub/internal/app/system/assignment"
	"github.com/dalemusser/fieldhub/internal/app/system/authutil"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/payload"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/textsanitize"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/app/system/txn"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

type createPayload struct {
	FullName string   `json:"full_name" validate:"required,max=200"`
	LoginID  string   `json:"login_id" validate:"required,max=254"`
	Password string   `json:"password" validate:"required,min=8,max=128"`
	Role     string   `json:"role" validate:"required,oneof=admin areamanager coordinator supervisor worker"`
	AreaIDs  []string `json:"area_ids" validate:"omitempty,dive,objectid"`
	CityIDs  []string `json:"city_ids" validate:"omitempty,dive,objectid"`
	WorkerID string   `json:"worker_id" validate:"omitempty,objectid"`
}

// scopeFieldsForRole rejects grants that do not belong on the role:
// area lists are for area managers, city lists for coordinators, and a
// worker link is for worker accounts only.
func scopeFieldsForRole(role string, areaIDs, cityIDs []primitive.ObjectID, workerID *primitive.ObjectID) map[string]string {
	fields := map[string]string{}
	if len(areaIDs) > 0 && role != authz.RoleAreaManager {
		fields["area_ids"] = "only area manager accounts carry area assignments"
	}
	if len(cityIDs) > 0 && role != authz.RoleCoordinator {
		fields["city_ids"] = "only coordinator accounts carry city assignments"
	}
	if workerID != nil && role != authz.RoleWorker {
		fields["worker_id"] = "only worker accounts link to a worker record"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func parseIDs(hexes []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		id, _ := primitive.ObjectIDFromHex(h)
		out = append(out, id)
	}
	return out
}

func userSnapshot(u models.User) bson.M {
	return bson.M{
		"full_name": u.FullName,
		"login_id":  u.LoginID,
		"role":      u.Role,
		"status":    u.Status,
	}
}

// HandleCreate adds an account with a role and its scope grants. The
// caller must outrank the new account and hold every granted scope.
// POST /users
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	var p createPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "users: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	areaIDs := parseIDs(p.AreaIDs)
	cityIDs := parseIDs(p.CityIDs)
	var workerID *primitive.ObjectID
	if p.WorkerID != "" {
		wid, _ := primitive.ObjectIDFromHex(p.WorkerID)
		workerID = &wid
	}
	if fields := scopeFieldsForRole(p.Role, areaIDs, cityIDs, workerID); fields != nil {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	dec, err := accesspolicy.CanManageUser(ctx, h.DB, sess, p.Role, areaIDs, cityIDs)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	if workerID != nil {
		if _, err := h.Workers.GetByID(ctx, *workerID); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				uierrors.WriteValidation(w, map[string]string{"worker_id": "no such worker"})
				return
			}
			h.ErrLog.LogInternal(w, r, "users: worker lookup failed", err)
			return
		}
	}

	hash, err := authutil.HashPassword(p.Password)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: password hash failed", err)
		return
	}

	var u models.User
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		created, err := h.Users.Create(ctx, models.User{
			FullName:     textsanitize.Plain(p.FullName),
			LoginID:      p.LoginID,
			PasswordHash: hash,
			AuthMethod:   "internal",
			Role:         p.Role,
			Status:       status.Active,
			AreaIDs:      areaIDs,
			CityIDs:      cityIDs,
			WorkerID:     workerID,
		})
		if err != nil {
			return err
		}
		u = created
		return h.AuditLog.EntityCreated(ctx, sess.UserID, audit.EventUserCreated, "user", u.ID, nil,
			userSnapshot(u))
	})
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateLoginID) {
			uierrors.WriteConflict(w, err.Error())
			return
		}
		h.ErrLog.LogInternal(w, r, "users: create failed", err)
		return
	}

	uierrors.WriteSuccess(w, u)
}

type updatePayload struct {
	FullName string    `json:"full_name" validate:"omitempty,max=200"`
	Password string    `json:"password" validate:"omitempty,min=8,max=128"`
	Role     string    `json:"role" validate:"omitempty,oneof=admin areamanager coordinator supervisor worker"`
	AreaIDs  *[]string `json:"area_ids" validate:"omitempty,dive,objectid"`
	CityIDs  *[]string `json:"city_ids" validate:"omitempty,dive,objectid"`
}

// HandleUpdate edits an account: profile fields, a new password, a role
// change, or replaced scope grants. Changing role away from supervisor
// releases every neighborhood the supervisor holds through the balancer,
// so their workers are re-homed rather than orphaned.
// PUT /users/{id}
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
		h.ErrLog.LogBadRequest(w, r, "users: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	before, ok := h.loadManaged(ctx, w, r, sess, id)
	if !ok {
		return
	}

	targetRole := before.Role
	if p.Role != "" {
		targetRole = p.Role
	}

	// The grants the account ends up with: explicit replacements win,
	// otherwise existing grants survive only while the role still uses
	// them.
	areaIDs := before.AreaIDs
	if targetRole != authz.RoleAreaManager {
		areaIDs = nil
	}
	if p.AreaIDs != nil {
		areaIDs = parseIDs(*p.AreaIDs)
	}
	cityIDs := before.CityIDs
	if targetRole != authz.RoleCoordinator {
		cityIDs = nil
	}
	if p.CityIDs != nil {
		cityIDs = parseIDs(*p.CityIDs)
	}
	if fields := scopeFieldsForRole(targetRole, areaIDs, cityIDs, nil); fields != nil {
		uierrors.WriteValidation(w, fields)
		return
	}

	dec, err := accesspolicy.CanManageUser(ctx, h.DB, sess, targetRole, areaIDs, cityIDs)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	var hash string
	if p.Password != "" {
		if hash, err = authutil.HashPassword(p.Password); err != nil {
			h.ErrLog.LogInternal(w, r, "users: password hash failed", err)
			return
		}
	}

	// A supervisor losing the role loses their territory first; each
	// neighborhood release runs its own locked transaction and cascades
	// its workers.
	if before.Role == authz.RoleSupervisor && targetRole != authz.RoleSupervisor {
		if _, err := h.Balancer.RemoveSupervisor(ctx, assignment.Actor{UserID: sess.UserID, Name: sess.Name}, id); err != nil {
			h.ErrLog.LogInternal(w, r, "users: supervisor release failed", err)
			return
		}
	}

	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := h.Users.UpdateProfile(ctx, id, models.User{
			FullName:     textsanitize.Plain(p.FullName),
			Role:         p.Role,
			PasswordHash: hash,
		}); err != nil {
			return err
		}
		if p.AreaIDs != nil || (before.Role != targetRole && len(before.AreaIDs) > 0) {
			if err := h.Users.SetAreaIDs(ctx, id, areaIDs); err != nil {
				return err
			}
		}
		if p.CityIDs != nil || (before.Role != targetRole && len(before.CityIDs) > 0) {
			if err := h.Users.SetCityIDs(ctx, id, cityIDs); err != nil {
				return err
			}
		}
		return h.AuditLog.EntityUpdated(ctx, sess.UserID, audit.EventUserUpdated, "user", id, nil,
			userSnapshot(*before),
			bson.M{
				"full_name": nonEmpty(textsanitize.Plain(p.FullName), before.FullName),
				"login_id":  before.LoginID,
				"role":      targetRole,
				"status":    before.Status,
			})
	})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: update failed", err)
		return
	}

	after, err := h.Users.GetByID(ctx, id)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: reload failed", err)
		return
	}
	uierrors.WriteSuccess(w, after)
}

type statusPayload struct {
	Status string `json:"status" validate:"required,oneof=active disabled"`
}

// HandleSetStatus disables or re-enables an account. Disabled users fail
// sign-in on their next request. A disabled supervisor keeps their
// neighborhood assignments so re-enabling restores the same territory.
// PUT /users/{id}/status
func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
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

	var p statusPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "users: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	before, ok := h.loadManaged(ctx, w, r, sess, id)
	if !ok {
		return
	}
	if id == sess.UserID && p.Status == status.Disabled {
		uierrors.WriteConflict(w, "you cannot disable your own account")
		return
	}

	eventType := audit.EventUserUpdated
	if p.Status == status.Disabled {
		eventType = audit.EventUserDisabled
	}
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := h.Users.SetStatus(ctx, id, p.Status); err != nil {
			return err
		}
		return h.AuditLog.EntityUpdated(ctx, sess.UserID, eventType, "user", id, nil,
			bson.M{"status": before.Status},
			bson.M{"status": p.Status})
	})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: status change failed", err)
		return
	}

	uierrors.WriteSuccess(w, map[string]any{"id": id.Hex(), "status": p.Status})
}

// HandleGet returns one account the caller manages (or their own). For
// supervisors the response includes their neighborhood assignments.
// GET /users/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var u *models.User
	if id == sess.UserID {
		if u, err = h.Users.GetByID(ctx, id); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				uierrors.WriteNotFound(w, "user")
				return
			}
			h.ErrLog.LogInternal(w, r, "users: lookup failed", err)
			return
		}
	} else if u, ok = h.loadManaged(ctx, w, r, sess, id); !ok {
		return
	}

	resp := map[string]any{"user": u}
	if u.Role == authz.RoleSupervisor {
		assignments, err := h.Assignments.ListByUser(ctx, u.ID)
		if err != nil {
			h.ErrLog.LogInternal(w, r, "users: assignment lookup failed", err)
			return
		}
		if assignments == nil {
			assignments = []models.SupervisorAssignment{}
		}
		resp["assignments"] = assignments
	}
	uierrors.WriteSuccess(w, resp)
}

// HandleList returns accounts with one role. The caller must be able to
// manage that role at all; scope-grant checks do not apply to reads here
// because the list carries no tree data beyond the grants themselves.
// GET /users?role=coordinator
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	role := r.URL.Query().Get("role")
	if !authz.ValidRole(role) {
		uierrors.WriteValidation(w, map[string]string{"role": "must be a known role"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	dec, err := accesspolicy.CanManageUser(ctx, h.DB, sess, role, nil, nil)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	list, err := h.Users.GetByRole(ctx, role, r.URL.Query().Get("include_disabled") == "")
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: list failed", err)
		return
	}
	if list == nil {
		list = []models.User{}
	}
	uierrors.WriteSuccess(w, list)
}

// HandleActivity returns the most recent audit events an account
// performed. Admin only; the raw trail is not scope-filtered.
// GET /users/{id}/activity
func (h *Handler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	if !sess.IsSuperAdmin && sess.Role != authz.RoleAdmin {
		uierrors.WriteForbidden(w, "only admins view account activity")
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.WriteValidation(w, map[string]string{"id": "must be a valid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	events, err := h.Audit.GetByActor(ctx, id, 50)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: activity lookup failed", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	uierrors.WriteSuccess(w, events)
}

// loadManaged loads the target account and checks that the caller may
// manage an account of its role and grants. Writes the error response
// itself when the answer is no.
func (h *Handler) loadManaged(ctx context.Context, w http.ResponseWriter, r *http.Request, sess authz.Session, id primitive.ObjectID) (*models.User, bool) {
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "user")
			return nil, false
		}
		h.ErrLog.LogInternal(w, r, "users: lookup failed", err)
		return nil, false
	}

	dec, err := accesspolicy.CanManageUser(ctx, h.DB, sess, u.Role, u.AreaIDs, u.CityIDs)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "users: policy check failed", err)
		return nil, false
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return nil, false
	}
	return u, true
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
