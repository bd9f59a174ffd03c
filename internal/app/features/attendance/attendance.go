// internal/app/features/attendance/attendance.go
package attendance

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/policy/accesspolicy"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/payload"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/app/system/textsanitize"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/app/system/txn"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

type checkInPayload struct {
	WorkerID string `json:"worker_id" validate:"required,objectid"`
	Notes    string `json:"notes" validate:"omitempty,max=2000"`
}

// HandleCheckIn records today's attendance for a worker. Re-recording the
// same day is an edit, not an error; the audit entry keeps the prior
// snapshot. Outside the daily window the request is rejected.
// POST /attendance
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	var p checkInPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "attendance: bad payload", err, "invalid request body")
		return
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}
	workerID, _ := primitive.ObjectIDFromHex(p.WorkerID)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	worker, ok := h.authorizeWorker(ctx, w, r, sess, workerID)
	if !ok {
		return
	}
	if worker.Status != status.Active {
		uierrors.WriteConflict(w, "worker is inactive")
		return
	}

	now := time.Now()
	if !h.Window.Contains(now) {
		uierrors.WriteConflict(w, "check-ins are closed right now; try again during the daily window")
		return
	}
	date := h.Window.DateKey(now)

	record := models.AttendanceRecord{
		WorkerID:       workerID,
		NeighborhoodID: worker.NeighborhoodID,
		Date:           date,
		Status:         "present",
		CheckedInAt:    now.UTC(),
		Notes:          textsanitize.Plain(p.Notes),
		RecordedByID:   sess.UserID,
		RecordedByName: sess.Name,
	}

	// Prior lookup, write, and audit entry commit or roll back together.
	var (
		rec     models.AttendanceRecord
		created bool
	)
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		var before bson.M
		prior, err := h.Attendance.Get(ctx, workerID, date)
		switch {
		case err == nil:
			before = snapshot(prior)
			if rec, err = h.Attendance.Edit(ctx, record); err != nil {
				return err
			}
			created = false
		case errors.Is(err, mongo.ErrNoDocuments):
			if rec, err = h.Attendance.Insert(ctx, record); err != nil {
				return err
			}
			created = true
		default:
			return err
		}
		return h.AuditLog.CheckIn(ctx, sess.UserID, workerID, worker.NeighborhoodID, worker.CityID,
			date, before, snapshot(rec))
	})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "attendance: check-in failed", err)
		return
	}

	uierrors.WriteSuccess(w, map[string]any{
		"record":  rec,
		"created": created,
	})
}

type undoPayload struct {
	WorkerID string `json:"worker_id" validate:"required,objectid"`
	Date     string `json:"date" validate:"required,dateonly"`
	Reason   string `json:"reason" validate:"required,max=1000"`
}

// HandleUndo deletes a check-in. Today's record can only be undone while
// the window is open; past dates may be corrected at any time. The reason
// is mandatory and lands in the audit entry with the deleted snapshot.
// POST /attendance/undo
func (h *Handler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	var p undoPayload
	fields, err := payload.Decode(r, &p)
	if err != nil {
		h.ErrLog.LogBadRequest(w, r, "attendance: bad payload", err, "invalid request body")
		return
	}
	if reason := textsanitize.Plain(p.Reason); reason == "" {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["reason"] = "reason must not be empty"
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}
	workerID, _ := primitive.ObjectIDFromHex(p.WorkerID)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	worker, ok := h.authorizeWorker(ctx, w, r, sess, workerID)
	if !ok {
		return
	}

	now := time.Now()
	if h.Window.IsToday(p.Date, now) && !h.Window.Contains(now) {
		uierrors.WriteConflict(w, "today's check-in can only be undone while the window is open")
		return
	}

	var deleted models.AttendanceRecord
	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		rec, err := h.Attendance.Delete(ctx, workerID, p.Date)
		if err != nil {
			return err
		}
		deleted = rec
		return h.AuditLog.CheckInUndone(ctx, sess.UserID, workerID, worker.NeighborhoodID, worker.CityID,
			p.Date, textsanitize.Plain(p.Reason), snapshot(deleted))
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "attendance record")
			return
		}
		h.ErrLog.LogInternal(w, r, "attendance: undo failed", err)
		return
	}

	uierrors.WriteSuccess(w, map[string]any{"deleted": deleted})
}

// authorizeWorker loads the worker and checks attendance authority over
// them. Writes the error response itself when the answer is no.
func (h *Handler) authorizeWorker(ctx context.Context, w http.ResponseWriter, r *http.Request, sess authz.Session, workerID primitive.ObjectID) (models.Worker, bool) {
	worker, err := h.Workers.GetByID(ctx, workerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.WriteNotFound(w, "worker")
			return models.Worker{}, false
		}
		h.ErrLog.LogInternal(w, r, "attendance: worker lookup failed", err)
		return models.Worker{}, false
	}

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionRecordAttendance,
		accesspolicy.Target{WorkerID: worker.ID, NeighborhoodID: worker.NeighborhoodID, CityID: worker.CityID})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "attendance: policy check failed", err)
		return models.Worker{}, false
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return models.Worker{}, false
	}
	return worker, true
}

func snapshot(rec models.AttendanceRecord) bson.M {
	return bson.M{
		"status":           rec.Status,
		"checked_in_at":    rec.CheckedInAt,
		"notes":            rec.Notes,
		"recorded_by_id":   rec.RecordedByID.Hex(),
		"recorded_by_name": rec.RecordedByName,
		"edit_count":       rec.EditCount,
	}
}
