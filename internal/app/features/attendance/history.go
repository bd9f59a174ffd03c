// internal/app/features/attendance/history.go
package attendance

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dalemusser/waffle/pantry/query"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/policy/scopepolicy"
	attendancestore "github.com/dalemusser/fieldhub/internal/app/store/attendance"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/checkwindow"
	"github.com/dalemusser/fieldhub/internal/app/system/paging"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

type historyResponse struct {
	Records []models.AttendanceRecord `json:"records"`
	HasNext bool                      `json:"has_next"`
	Offset  int64                     `json:"offset"`
}

// HandleHistory returns scope-filtered attendance records, newest date
// first. Optional query params: worker_id, neighborhood_id, start, end
// (both 2006-01-02), offset.
// GET /attendance/history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	scope, err := scopepolicy.Resolve(ctx, h.DB, sess)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "attendance: scope resolve failed", err)
		return
	}

	filter, ok := h.scopedFilter(ctx, w, r, scope)
	if !ok {
		return
	}

	if wid := query.Get(r, "worker_id"); wid != "" {
		id, err := primitive.ObjectIDFromHex(wid)
		if err != nil {
			uierrors.WriteValidation(w, map[string]string{"worker_id": "must be a valid id"})
			return
		}
		worker, err := h.Workers.GetByID(ctx, id)
		if err != nil {
			uierrors.WriteNotFound(w, "worker")
			return
		}
		if !scope.ContainsWorker(worker.ID, worker.NeighborhoodID, worker.CityID) {
			uierrors.WriteForbidden(w, "worker is outside your territory")
			return
		}
		filter.WorkerIDs = []primitive.ObjectID{id}
		filter.NeighborhoodIDs = nil
	}
	if nid := query.Get(r, "neighborhood_id"); nid != "" {
		id, err := primitive.ObjectIDFromHex(nid)
		if err != nil {
			uierrors.WriteValidation(w, map[string]string{"neighborhood_id": "must be a valid id"})
			return
		}
		nbhd, err := h.Neighborhoods.GetByID(ctx, id)
		if err != nil {
			uierrors.WriteNotFound(w, "neighborhood")
			return
		}
		if !scope.ContainsNeighborhood(nbhd.ID, nbhd.CityID) {
			uierrors.WriteForbidden(w, "neighborhood is outside your territory")
			return
		}
		filter.NeighborhoodIDs = []primitive.ObjectID{id}
	}

	fields := map[string]string{}
	if start := query.Get(r, "start"); start != "" {
		if _, err := time.Parse(checkwindow.DateLayout, start); err != nil {
			fields["start"] = "must be formatted 2006-01-02"
		} else {
			filter.StartDate = start
		}
	}
	if end := query.Get(r, "end"); end != "" {
		if _, err := time.Parse(checkwindow.DateLayout, end); err != nil {
			fields["end"] = "must be formatted 2006-01-02"
		} else {
			filter.EndDate = end
		}
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	var offset int64
	if o := query.Get(r, "offset"); o != "" {
		n, err := strconv.ParseInt(o, 10, 64)
		if err != nil || n < 0 {
			uierrors.WriteValidation(w, map[string]string{"offset": "must be a non-negative number"})
			return
		}
		offset = n
	}

	rows, err := h.Attendance.History(ctx, filter, paging.LimitPlusOne(), offset)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "attendance: history failed", err)
		return
	}
	hasNext := len(rows) > paging.PageSize
	if hasNext {
		rows = rows[:paging.PageSize]
	}
	if rows == nil {
		rows = []models.AttendanceRecord{}
	}
	uierrors.WriteSuccess(w, historyResponse{Records: rows, HasNext: hasNext, Offset: offset})
}

// scopedFilter maps the caller's scope onto a history filter. City scopes
// expand to their neighborhood IDs since attendance rows carry no city.
func (h *Handler) scopedFilter(ctx context.Context, w http.ResponseWriter, r *http.Request, scope scopepolicy.Scope) (attendancestore.HistoryFilter, bool) {
	var filter attendancestore.HistoryFilter
	switch scope.Kind {
	case scopepolicy.Unrestricted:
	case scopepolicy.ByCity:
		nbhdIDs, err := h.Neighborhoods.IDsByCity(ctx, scope.CityIDs)
		if err != nil {
			h.ErrLog.LogInternal(w, r, "attendance: scope expansion failed", err)
			return filter, false
		}
		if nbhdIDs == nil {
			nbhdIDs = []primitive.ObjectID{primitive.NilObjectID}
		}
		filter.NeighborhoodIDs = nbhdIDs
	case scopepolicy.ByNeighborhood:
		nbhdIDs := scope.NeighborhoodIDs
		if len(nbhdIDs) == 0 {
			nbhdIDs = []primitive.ObjectID{primitive.NilObjectID}
		}
		filter.NeighborhoodIDs = nbhdIDs
	case scopepolicy.BySelf:
		filter.WorkerIDs = []primitive.ObjectID{scope.WorkerID}
	default:
		uierrors.WriteForbidden(w, "your role cannot view attendance history")
		return filter, false
	}
	return filter, true
}
