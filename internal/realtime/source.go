// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/syncer"
)

// WSSource is the agent-side SnapshotSource over the websocket bridge.
// One Watch call opens one websocket. Reconnecting after a drop is the
// reader's job, not ours; a dropped connection simply ends the
// subscription stream.
type WSSource struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
	log     *logger.Logger
}

// WSSourceConfig configures the agent's websocket client.
type WSSourceConfig struct {
	// BaseURL is the server's http(s) base URL; the ws(s) scheme is derived.
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewWSSource returns a WSSource.
func NewWSSource(cfg WSSourceConfig, log *logger.Logger) *WSSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &WSSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		log:     log,
	}
}

func (s *WSSource) Watch(ctx context.Context, groupID string) (docstore.Subscription, error) {
	wsURL, err := s.watchURL(groupID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial snapshot stream: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial snapshot stream: %w", err)
	}

	sub := &wsSubscription{
		conn: conn,
		out:  make(chan docstore.Doc, 16),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go sub.readLoop(groupID, s.log)

	// tear the stream down with the context
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

func (s *WSSource) watchURL(groupID string) (string, error) {
	u, err := url.Parse(s.baseURL + "/ws/watch")
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("group_id", groupID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type wsSubscription struct {
	conn *websocket.Conn
	out  chan docstore.Doc

	closeOnce sync.Once
	stop      chan struct{} // closed by Close
	done      chan struct{} // closed when readLoop exits
}

func (s *wsSubscription) Snapshots() <-chan docstore.Doc {
	return s.out
}

func (s *wsSubscription) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (s *wsSubscription) readLoop(groupID string, log *logger.Logger) {
	defer close(s.done)
	defer close(s.out)
	defer s.Close()

	for {
		var msg snapshotMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Str("func", "readLoop").Str("group_id", groupID).Err(err).Msg("snapshot stream dropped")
			}
			return
		}

		doc := docstore.Doc{
			Ref:       docstore.Ref{Collection: syncer.GroupsCollection, ID: msg.GroupID},
			Data:      msg.Body,
			Version:   msg.Version,
			UpdatedAt: msg.UpdatedAt,
			Exists:    msg.Exists,
		}
		select {
		case s.out <- doc:
		case <-s.stop:
			return
		}
	}
}
