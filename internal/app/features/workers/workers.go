// internal/app/features/workers/workers.go
package workers

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
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/payload"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/textsanitize"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/app/system/txn"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

type createPayload struct {
	FullName       string `json:"full_name" validate:"required,max=200"`
	Phone          string `json:"phone" validate:"omitempty,max=50"`
	NeighborhoodID string `json:"neighborhood_id" validate:"required,objectid"`
	SupervisorID   string `json:"supervisor_id" validate:"omitempty,objectid"`
}

// HandleCreate adds a worker to a neighborhood. The supervisor reference
// must satisfy the neighborhood's coverage rule: nil while the
// neighborhood is unsupervised, one of its supervisors otherwise.
// POST /workers
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	var p createPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "workers: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}
	neighborhoodID, _ := primitive.ObjectIDFromHex(p.NeighborhoodID)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	nbhd, err := h.Neighborhoods.GetByID(ctx, neighborhoodID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteValidation(w, map[string]string{"neighborhood_id": "no such neighborhood"})
			return
		}
		h.ErrLog.LogInternal(w, r, "workers: neighborhood lookup failed", err)
		return
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionCreateWorker,
		accesspolicy.Target{NeighborhoodID: nbhd.ID, CityID: nbhd.CityID})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	var supervisorID *primitive.ObjectID
	if p.SupervisorID != "" {
		sid, _ := primitive.ObjectIDFromHex(p.SupervisorID)
		supervisorID = &sid
	}

	// The supervisor roster must not change between the coverage check
	// and the insert, so both happen under the neighborhood's lock.
	unlock := h.Balancer.LockNeighborhood(neighborhoodID)
	defer unlock()

	val, err := h.Balancer.ValidateAssignment(ctx, neighborhoodID, supervisorID)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: assignment validation failed", err)
		return
	}
	if !val.Valid {
		uierrors.WriteConflict(w, val.Reason)
		return
	}

	var worker models.Worker
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		created, err := h.Workers.Create(ctx, models.Worker{
			FullName:       textsanitize.Plain(p.FullName),
			Phone:          textsanitize.Plain(p.Phone),
			NeighborhoodID: nbhd.ID,
			CityID:         nbhd.CityID,
			SupervisorID:   supervisorID,
			Status:         status.Active,
		})
		if err != nil {
			return err
		}
		worker = created
		return h.AuditLog.EntityCreated(ctx, sess.UserID, audit.EventWorkerCreated, "worker", worker.ID, &worker.CityID,
			bson.M{"full_name": worker.FullName, "neighborhood_id": worker.NeighborhoodID.Hex()})
	})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: create failed", err)
		return
	}

	uierrors.WriteSuccess(w, worker)
}

// HandleGet returns one worker the caller can see.
// GET /workers/{id}
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

	// Workers may read their own record even though they manage nothing.
	if !sess.WorkerID.IsZero() && sess.WorkerID == id {
		worker, err := h.Workers.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				uierrors.WriteNotFound(w, "worker")
				return
			}
			h.ErrLog.LogInternal(w, r, "workers: lookup failed", err)
			return
		}
		uierrors.WriteSuccess(w, worker)
		return
	}

	worker, _, ok := h.loadInScope(ctx, w, r, sess, id)
	if !ok {
		return
	}
	uierrors.WriteSuccess(w, worker)
}

type updatePayload struct {
	FullName       string  `json:"full_name" validate:"omitempty,max=200"`
	Phone          *string `json:"phone" validate:"omitempty,max=50"`
	Status         string  `json:"status" validate:"omitempty,oneof=active inactive"`
	NeighborhoodID string  `json:"neighborhood_id" validate:"omitempty,objectid"`
	// SupervisorID nil keeps the current reference, "" clears it, a hex
	// value sets it. The result must pass the coverage rule whenever the
	// worker ends up active.
	SupervisorID *string `json:"supervisor_id" validate:"omitempty"`
}

// HandleUpdate edits a worker: profile fields, status, a move to another
// neighborhood, or a supervisor change. Any combination that would leave
// an active worker violating the coverage rule is rejected with the
// balancer's reason.
// PUT /workers/{id}
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
		h.ErrLog.LogBadRequest(w, r, "workers: bad payload", err, "invalid request body")
		return
	}
	if p.SupervisorID != nil && *p.SupervisorID != "" {
		if _, idErr := primitive.ObjectIDFromHex(*p.SupervisorID); idErr != nil {
			if fields == nil {
				fields = map[string]string{}
			}
			fields["supervisor_id"] = "must be a valid id"
		}
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	before, _, ok := h.loadInScope(ctx, w, r, sess, id)
	if !ok {
		return
	}

	// Work out where the worker ends up.
	targetNbhdID := before.NeighborhoodID
	targetCityID := before.CityID
	if p.NeighborhoodID != "" {
		nid, _ := primitive.ObjectIDFromHex(p.NeighborhoodID)
		if nid != before.NeighborhoodID {
			nbhd, err := h.Neighborhoods.GetByID(ctx, nid)
			if err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					uierrors.WriteValidation(w, map[string]string{"neighborhood_id": "no such neighborhood"})
					return
				}
				h.ErrLog.LogInternal(w, r, "workers: neighborhood lookup failed", err)
				return
			}
			// Moving a worker needs authority over the destination too.
			destDec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionCreateWorker,
				accesspolicy.Target{NeighborhoodID: nbhd.ID, CityID: nbhd.CityID})
			if err != nil {
				h.ErrLog.LogInternal(w, r, "workers: policy check failed", err)
				return
			}
			if !destDec.Allowed {
				uierrors.WriteForbidden(w, destDec.Reason)
				return
			}
			targetNbhdID = nbhd.ID
			targetCityID = nbhd.CityID
		}
	}

	supervisorID := before.SupervisorID
	if moved := targetNbhdID != before.NeighborhoodID; moved && p.SupervisorID == nil {
		// A stale reference never survives a move.
		supervisorID = nil
	}
	if p.SupervisorID != nil {
		if *p.SupervisorID == "" {
			supervisorID = nil
		} else {
			sid, _ := primitive.ObjectIDFromHex(*p.SupervisorID)
			supervisorID = &sid
		}
	}

	targetStatus := before.Status
	if p.Status != "" {
		targetStatus = p.Status
	}

	// Hold the destination neighborhood's lock from the coverage check
	// through the writes so a concurrent roster change cannot slip in
	// between them.
	unlock := h.Balancer.LockNeighborhood(targetNbhdID)
	defer unlock()

	if targetStatus == status.Active {
		val, err := h.Balancer.ValidateAssignment(ctx, targetNbhdID, supervisorID)
		if err != nil {
			h.ErrLog.LogInternal(w, r, "workers: assignment validation failed", err)
			return
		}
		if !val.Valid {
			uierrors.WriteConflict(w, val.Reason)
			return
		}
	}

	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		upd := models.Worker{
			FullName: textsanitize.Plain(p.FullName),
			Status:   p.Status,
		}
		if p.Phone != nil {
			upd.Phone = textsanitize.Plain(*p.Phone)
		}
		if err := h.Workers.Update(ctx, id, upd); err != nil {
			return err
		}
		if targetNbhdID != before.NeighborhoodID {
			if err := h.Workers.Move(ctx, id, targetNbhdID, targetCityID); err != nil {
				return err
			}
		}
		if err := h.Workers.SetSupervisor(ctx, id, supervisorID); err != nil {
			return err
		}
		return h.AuditLog.EntityUpdated(ctx, sess.UserID, audit.EventWorkerUpdated, "worker", id, &targetCityID,
			bson.M{
				"full_name":       before.FullName,
				"status":          before.Status,
				"neighborhood_id": before.NeighborhoodID.Hex(),
				"supervisor_id":   hexOrEmpty(before.SupervisorID),
			},
			bson.M{
				"full_name":       nonEmpty(textsanitize.Plain(p.FullName), before.FullName),
				"status":          targetStatus,
				"neighborhood_id": targetNbhdID.Hex(),
				"supervisor_id":   hexOrEmpty(supervisorID),
			})
	})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: update failed", err)
		return
	}

	after, err := h.Workers.GetByID(ctx, id)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: reload failed", err)
		return
	}
	uierrors.WriteSuccess(w, after)
}

// HandleDelete removes a worker and unlinks any login account pointing at
// it.
// DELETE /workers/{id}
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

	before, _, ok := h.loadInScope(ctx, w, r, sess, id)
	if !ok {
		return
	}

	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		n, err := h.Workers.Delete(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return mongo.ErrNoDocuments
		}
		if err := h.Users.ClearWorkerLink(ctx, id); err != nil {
			return err
		}
		return h.AuditLog.EntityDeleted(ctx, sess.UserID, audit.EventWorkerDeleted, "worker", id, &before.CityID,
			bson.M{"full_name": before.FullName, "neighborhood_id": before.NeighborhoodID.Hex()})
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "worker")
			return
		}
		h.ErrLog.LogInternal(w, r, "workers: delete failed", err)
		return
	}

	uierrors.WriteSuccess(w, map[string]string{"deleted": id.Hex()})
}

// loadInScope fetches a worker and checks management authority over it.
// Writes the error response itself when the answer is no.
func (h *Handler) loadInScope(ctx context.Context, w http.ResponseWriter, r *http.Request, sess authz.Session, id primitive.ObjectID) (models.Worker, accesspolicy.Decision, bool) {
	worker, err := h.Workers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "worker")
			return models.Worker{}, accesspolicy.Decision{}, false
		}
		h.ErrLog.LogInternal(w, r, "workers: lookup failed", err)
		return models.Worker{}, accesspolicy.Decision{}, false
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionManageWorker,
		accesspolicy.Target{NeighborhoodID: worker.NeighborhoodID, CityID: worker.CityID, WorkerID: worker.ID})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "workers: policy check failed", err)
		return models.Worker{}, accesspolicy.Decision{}, false
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return models.Worker{}, accesspolicy.Decision{}, false
	}
	return worker, dec, true
}

func hexOrEmpty(id *primitive.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
