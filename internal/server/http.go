package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/okazakov/go-spend-sync/internal/config"
	"github.com/okazakov/go-spend-sync/internal/logger"
)

type httpServer struct {
	server *http.Server
	log    *logger.Logger
}

func newHTTPServer(handler http.Handler, cfg config.Server, log *logger.Logger) *httpServer {
	return &httpServer{
		server: &http.Server{
			Addr:        cfg.HTTPAddress,
			Handler:     handler,
			ReadTimeout: cfg.RequestTimeout,
		},
		log: log,
	}
}

func (h *httpServer) RunServer() {
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.log.Error().Err(err).Msg("HTTP server ListenAndServe")
	}
}

func (h *httpServer) Shutdown() {
	if err := h.server.Shutdown(context.Background()); err != nil {
		h.log.Error().Err(err).Msg("HTTP server Shutdown")
	}
}
