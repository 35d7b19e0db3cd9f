// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package deltasvc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/token"
	"github.com/okazakov/go-spend-sync/models"
)

// Handler exposes the delta service over HTTP.
type Handler struct {
	service *Service
	tokens  *token.Manager
	log     *logger.Logger
}

// NewHandler returns a Handler authenticating with tokens.
func NewHandler(service *Service, tokens *token.Manager, log *logger.Logger) *Handler {
	return &Handler{service: service, tokens: tokens, log: log}
}

// Routes mounts the delta endpoint on a fresh router. All routes require a
// bearer token; the verified actor feeds the server-side membership check.
func (h *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(h.tokens.Middleware(h.log))
	router.Post("/delta", h.delta)
	return router
}

func (h *Handler) delta(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.With().Str("func", "*Handler.delta").Logger()

	actor, ok := docstore.ActorFromContext(ctx)
	if !ok {
		log.Error().Msg("no actor in authenticated request")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.DeltaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Err(err).Msg("invalid JSON was passed")
		http.Error(w, "invalid JSON was passed", http.StatusBadRequest)
		return
	}
	if req.GroupID == "" {
		http.Error(w, "group_id is required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Delta(ctx, actor, req)
	if err != nil {
		log.Error().Err(err).Str("group_id", req.GroupID).Msg("error evaluating delta")
		http.Error(w, "error evaluating delta", statusFromError(err))
		return
	}

	writeJSON(w, resp, http.StatusOK)
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotMember):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
