// internal/app/features/auditlog/list.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dalemusser/waffle/pantry/query"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/policy/accesspolicy"
	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/paging"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
)

type listResponse struct {
	Events  []eventView `json:"events"`
	HasNext bool        `json:"has_next"`
	Offset  int64       `json:"offset"`
}

// eventView flattens an audit row for JSON. ObjectIDs become hex strings
// and absent pointers become empty strings.
type eventView struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	ActorID       string            `json:"actor_id,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	EntityType    string            `json:"entity_type,omitempty"`
	EntityID      string            `json:"entity_id,omitempty"`
	CityID        string            `json:"city_id,omitempty"`
	Before        map[string]any    `json:"before,omitempty"`
	After         map[string]any    `json:"after,omitempty"`
	BatchID       string            `json:"batch_id,omitempty"`
	WorkerCount   int               `json:"worker_count,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// HandleList returns audit events newest first, filtered and paged.
// Admins see everything; area managers only events inside their cities.
// Query params: category, event_type, actor_id, entity_id, start/end
// (RFC 3339), offset.
// GET /auditlog
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	dec, err := accesspolicy.CanPerform(ctx, h.DB, sess, accesspolicy.ActionViewAudit, accesspolicy.Target{})
	if err != nil {
		h.ErrLog.LogInternal(w, r, "auditlog: policy check failed", err)
		return
	}
	if !dec.Allowed {
		uierrors.WriteForbidden(w, dec.Reason)
		return
	}

	filter := audit.QueryFilter{Limit: paging.LimitPlusOne()}

	// Area managers only see events tagged with one of their cities.
	if !sess.IsSuperAdmin && sess.Role == authz.RoleAreaManager {
		cityIDs, err := h.Cities.IDsByArea(ctx, sess.AreaIDs)
		if err != nil {
			h.ErrLog.LogInternal(w, r, "auditlog: scope expansion failed", err)
			return
		}
		if len(cityIDs) == 0 {
			cityIDs = []primitive.ObjectID{primitive.NilObjectID}
		}
		filter.CityIDs = cityIDs
	}

	fields := map[string]string{}
	filter.Category = query.Get(r, "category")
	filter.EventType = query.Get(r, "event_type")
	if v := query.Get(r, "actor_id"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			fields["actor_id"] = "must be a valid id"
		} else {
			filter.ActorID = &id
		}
	}
	if v := query.Get(r, "entity_id"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			fields["entity_id"] = "must be a valid id"
		} else {
			filter.EntityID = &id
		}
	}
	if v := query.Get(r, "start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fields["start"] = "must be RFC 3339"
		} else {
			filter.StartTime = &t
		}
	}
	if v := query.Get(r, "end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fields["end"] = "must be RFC 3339"
		} else {
			filter.EndTime = &t
		}
	}
	if v := query.Get(r, "offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			fields["offset"] = "must be a non-negative number"
		} else {
			filter.Offset = n
		}
	}
	if len(fields) > 0 {
		uierrors.WriteValidation(w, fields)
		return
	}

	events, err := h.Audit.Query(ctx, filter)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "auditlog: query failed", err)
		return
	}
	hasNext := len(events) > paging.PageSize
	if hasNext {
		events = events[:paging.PageSize]
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, toView(e))
	}
	uierrors.WriteSuccess(w, listResponse{Events: views, HasNext: hasNext, Offset: filter.Offset})
}

func toView(e audit.Event) eventView {
	v := eventView{
		ID:            e.ID.Hex(),
		Timestamp:     e.Timestamp,
		Category:      e.Category,
		EventType:     e.EventType,
		EntityType:    e.EntityType,
		BatchID:       e.BatchID,
		WorkerCount:   e.WorkerCount,
		Success:       e.Success,
		FailureReason: e.FailureReason,
		Details:       e.Details,
	}
	if e.ActorID != nil {
		v.ActorID = e.ActorID.Hex()
	}
	if e.UserID != nil {
		v.UserID = e.UserID.Hex()
	}
	if e.EntityID != nil {
		v.EntityID = e.EntityID.Hex()
	}
	if e.CityID != nil {
		v.CityID = e.CityID.Hex()
	}
	if e.Before != nil {
		v.Before = map[string]any(e.Before)
	}
	if e.After != nil {
		v.After = map[string]any(e.After)
	}
	return v
}
