// internal/app/features/cities/routes.go
package cities

import (
	"github.com/go-chi/chi/v5"

	"github.com/dalemusser/fieldhub/internal/app/system/auth"
)

// Routes mounts the city endpoints. Typically: r.Mount("/cities", cities.Routes(h))
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Get("/", h.HandleList)
	r.Get("/timezones", h.HandleTimeZones)
	r.Post("/", h.HandleCreate)
	r.Put("/{id}", h.HandleUpdate)
	r.Put("/{id}/area", h.HandleSetArea)
	r.Delete("/{id}", h.HandleDelete)
	return r
}
