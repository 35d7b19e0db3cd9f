// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package syncer implements the client side of the synchronization layer:
// the stamp writer, the group subscription reader, the cache-invalidating
// reactor and the delta fetcher, tied together by a Session.
package syncer

import (
	"context"
	"fmt"

	"github.com/okazakov/go-spend-sync/internal/localstate"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

// Session is one local user's view of its shared groups. It owns the
// subscription reader and the reactor and exposes the read side: cached
// records with a local-state fallback while a refetch is in flight.
type Session struct {
	self    string
	reader  *Reader
	reactor *Reactor
	cache   *Cache
	local   *localstate.DB
	log     *logger.Logger
}

// NewSession wires a Session for the given member identity.
func NewSession(self string, reader *Reader, reactor *Reactor, cache *Cache, local *localstate.DB, log *logger.Logger) *Session {
	return &Session{
		self:    self,
		reader:  reader,
		reactor: reactor,
		cache:   cache,
		local:   local,
		log:     log,
	}
}

// Run drives the reactor until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	s.reactor.Run(ctx)
}

// AddGroup starts tracking a group: a push subscription is opened and the
// first snapshot triggers the initial fetch that fills the cache. Subject
// to the subscription cap.
func (s *Session) AddGroup(ctx context.Context, groupID string) error {
	if err := s.reader.AddGroup(ctx, groupID); err != nil {
		return fmt.Errorf("track group %s: %w", groupID, err)
	}
	s.log.Info().Str("func", "AddGroup").Str("group_id", groupID).Msg("group tracked")
	return nil
}

// RemoveGroup stops tracking a group and drops its local data.
func (s *Session) RemoveGroup(ctx context.Context, groupID string) error {
	s.reader.RemoveGroup(groupID)
	s.reactor.Forget(groupID)
	if err := s.local.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("drop local state for %s: %w", groupID, err)
	}
	s.log.Info().Str("func", "RemoveGroup").Str("group_id", groupID).Msg("group dropped")
	return nil
}

// Records returns the group's records: the cached set when present, the
// last merged local copy while the cache is invalidated and a refetch is
// pending.
func (s *Session) Records(ctx context.Context, groupID string) ([]models.Record, error) {
	if records, ok := s.cache.RecordsFor(groupID); ok {
		return records, nil
	}
	return s.local.RecordsFor(ctx, groupID)
}

// Events exposes the reactor's cache lifecycle events.
func (s *Session) Events() <-chan Event {
	return s.reactor.Events()
}

// Tracked returns the IDs of the currently tracked groups.
func (s *Session) Tracked() []string {
	return s.reader.Tracked()
}

// Refresh schedules a fetch for every tracked group.
func (s *Session) Refresh() {
	for _, groupID := range s.reader.Tracked() {
		s.reactor.Refresh(groupID)
	}
}

// Close stops all subscriptions.
func (s *Session) Close() {
	s.reader.Close()
}
