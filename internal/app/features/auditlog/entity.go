// internal/app/features/auditlog/entity.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	uierrors "github.com/dalemusser/fieldhub/internal/app/features/errors"
	"github.com/dalemusser/fieldhub/internal/app/system/authz"
	"github.com/dalemusser/fieldhub/internal/app/system/timeouts"
)

// HandleEntity returns the audit history of one record, newest first.
// Admin only: unlike the main list this is not city-scoped, so area
// managers cannot reach records outside their territory through it.
// GET /auditlog/entity/{id}
func (h *Handler) HandleEntity(w http.ResponseWriter, r *http.Request) {
	sess, ok := authz.FromRequest(r)
	if !ok {
		uierrors.WriteUnauthorized(w)
		return
	}
	if !sess.IsSuperAdmin && sess.Role != authz.RoleAdmin {
		uierrors.WriteForbidden(w, "only admins view a record's full history")
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.WriteValidation(w, map[string]string{"id": "must be a valid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	events, err := h.Audit.GetByEntity(ctx, id, 100)
	if err != nil {
		h.ErrLog.LogInternal(w, r, "auditlog: entity query failed", err)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, toView(e))
	}
	uierrors.WriteSuccess(w, map[string]any{"events": views})
}
