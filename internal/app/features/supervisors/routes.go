// internal/app/features/supervisors/routes.go
package supervisors

import (
	"github.com/go-chi/chi/v5"

	"github.com/dalemusser/fieldhub/internal/app/system/auth"
)

// Routes mounts the supervisor assignment endpoints. Typically:
// r.Mount("/supervisors", supervisors.Routes(h))
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Post("/assign", h.HandleAssign)
	r.Post("/unassign", h.HandleUnassign)
	r.Get("/neighborhood/{id}", h.HandleListByNeighborhood)
	r.Get("/neighborhood/{id}/impact/{userID}", h.HandleRemovalImpact)
	return r
}
