package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okazakov/go-spend-sync/internal/deltasvc"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/realtime"
	"github.com/okazakov/go-spend-sync/internal/token"
)

// NewRouter composes the root router: the delta API under /api, the
// snapshot push channel under /ws, and the operational endpoints.
func NewRouter(api *deltasvc.Handler, bridge *realtime.Bridge, tokens *token.Manager, log *logger.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Mount("/api", api.Routes())

	router.Group(func(r chi.Router) {
		r.Use(tokens.Middleware(log))
		r.Mount("/ws", bridge.Routes())
	})

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return router
}
