// internal/app/features/attendance/routes.go
package attendance

import (
	"github.com/go-chi/chi/v5"

	"github.com/dalemusser/fieldhub/internal/app/system/auth"
)

// Routes mounts the attendance endpoints. Typically:
// r.Mount("/attendance", attendance.Routes(h))
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Post("/", h.HandleCheckIn)
	r.Post("/undo", h.HandleUndo)
	r.Get("/history", h.HandleHistory)
	return r
}
