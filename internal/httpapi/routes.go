package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/hub"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/ws"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SetupRoutes builds the router. loc is used for rendered timestamps; nil
// means the server's local zone.
func SetupRoutes(h *hub.Hub, logger *zap.Logger, loc *time.Location) http.Handler {
	hs := &handlers{hub: h, logger: logger, loc: loc}
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", hs.ListSessions)
		r.Post("/", hs.MountSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", hs.UnmountSession)
			r.Get("/state", hs.State)
			r.Get("/activity", hs.Activity)
			r.Get("/monitor", hs.Monitor)
			r.Post("/reconnect", hs.Reconnect)
			r.Get("/ws", ws.Handler(h, logger))
		})
	})
	return r
}
