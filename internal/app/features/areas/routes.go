// internal/app/features/areas/routes.go
package areas

import (
	"github.com/go-chi/chi/v5"

	"github.com/dalemusser/fieldhub/internal/app/system/auth"
)

// Routes mounts the area endpoints. Typically: r.Mount("/areas", areas.Routes(h))
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Put("/{id}", h.HandleUpdate)
	r.Put("/{id}/manager", h.HandleSetManager)
	r.Delete("/{id}", h.HandleDelete)
	return r
}
