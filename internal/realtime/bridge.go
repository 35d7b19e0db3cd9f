// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package realtime bridges the document store's push subscriptions over
// websockets so remote sync agents receive group snapshots without polling.
// One websocket carries one group's snapshot stream; the agent side
// plugs into the syncer as a SnapshotSource.
package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/syncer"
	"github.com/okazakov/go-spend-sync/models"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// snapshotMessage is the wire form of one document snapshot.
type snapshotMessage struct {
	GroupID   string          `json:"group_id"`
	Body      json.RawMessage `json:"body,omitempty"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Exists    bool            `json:"exists"`
}

// Bridge serves group snapshot streams over websockets.
type Bridge struct {
	store    docstore.Store
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewBridge returns a Bridge over store.
func NewBridge(store docstore.Store, log *logger.Logger) *Bridge {
	return &Bridge{
		store: store,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes mounts the watch endpoint. Authentication middleware is applied
// by the caller; the actor must already be in the request context.
func (b *Bridge) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/watch", b.watch)
	return router
}

func (b *Bridge) watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := b.log.With().Str("func", "*Bridge.watch").Logger()

	actor, ok := docstore.ActorFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		http.Error(w, "group_id is required", http.StatusBadRequest)
		return
	}
	log = b.log.With().Str("func", "*Bridge.watch").Str("group_id", groupID).Str("actor", actor).Logger()

	// membership gate before the upgrade; departed members reconnecting
	// with a still-valid token get cut off here
	doc, err := b.store.Get(ctx, docstore.Ref{Collection: syncer.GroupsCollection, ID: groupID})
	if err != nil {
		log.Error().Err(err).Msg("error reading group")
		http.Error(w, "error reading group", http.StatusInternalServerError)
		return
	}
	if doc.Exists {
		var group models.SharedGroup
		if err = doc.Decode(&group); err != nil {
			log.Error().Err(err).Msg("undecodable group document")
			http.Error(w, "error reading group", http.StatusInternalServerError)
			return
		}
		if !group.HasMember(actor) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	sub, err := b.store.Watch(ctx, docstore.Ref{Collection: syncer.GroupsCollection, ID: groupID})
	if err != nil {
		log.Error().Err(err).Msg("error subscribing")
		http.Error(w, "error subscribing", http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	log.Debug().Msg("snapshot stream opened")

	// drain client frames so pong handling and close detection work
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-clientGone:
			log.Debug().Msg("client closed stream")
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case doc, ok := <-sub.Snapshots():
			if !ok {
				return
			}
			msg := snapshotMessage{
				GroupID:   groupID,
				Body:      doc.Data,
				Version:   doc.Version,
				UpdatedAt: doc.UpdatedAt,
				Exists:    doc.Exists,
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("snapshot write failed, closing stream")
				return
			}
		}
	}
}
