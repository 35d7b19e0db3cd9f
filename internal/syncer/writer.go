// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/guard"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/metrics"
	"github.com/okazakov/go-spend-sync/models"
)

// Stamper writes member update stamps: after a member changes any resource
// of a group, its entry in the group's member_updates map is set to the
// store's clock. Other members' reactors key their cache invalidation off
// these stamps.
//
// The stamp is advisory. A failed stamp only delays other members'
// refresh until the periodic reconcile; it never fails or rolls back the
// domain mutation it follows. Stamp therefore logs and swallows errors.
type Stamper struct {
	store docstore.Store
	guard *guard.Guard
	log   *logger.Logger
}

// NewStamper returns a Stamper writing through g.
func NewStamper(store docstore.Store, g *guard.Guard, log *logger.Logger) *Stamper {
	return &Stamper{store: store, guard: g, log: log}
}

// Stamp records that actor changed something in the group. Clock skew is
// kept out by taking the timestamp from the store, never from the client.
// Errors are logged and dropped.
func (s *Stamper) Stamp(ctx context.Context, groupID, actor string) {
	if err := s.stamp(ctx, groupID, actor); err != nil {
		metrics.StampFailures.Inc()
		s.log.Warn().Str("func", "Stamp").
			Str("group_id", groupID).
			Str("actor", actor).
			Err(err).
			Msg("member update stamp dropped")
	}
}

func (s *Stamper) stamp(ctx context.Context, groupID, actor string) error {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}

	ctx = docstore.WithActor(ctx, actor)
	ref := docstore.Ref{Collection: GroupsCollection, ID: groupID}

	return s.guard.Mutate(ctx, ref, func(cur docstore.Doc) ([]byte, bool, error) {
		if !cur.Exists {
			return nil, false, fmt.Errorf("group %s missing: %w", groupID, guard.ErrPreconditionNotMet)
		}

		var group models.SharedGroup
		if err := cur.Decode(&group); err != nil {
			return nil, false, fmt.Errorf("decode group %s: %w", groupID, err)
		}
		if !group.HasMember(actor) {
			return nil, false, fmt.Errorf("actor %s not a member of %s: %w", actor, groupID, guard.ErrPreconditionNotMet)
		}

		if group.MemberUpdates == nil {
			group.MemberUpdates = make(map[string]time.Time, 1)
		}
		if !now.After(group.MemberUpdates[actor]) {
			// a concurrent stamp from the same actor already moved past us
			return nil, false, nil
		}
		group.MemberUpdates[actor] = now

		next, err := json.Marshal(group)
		if err != nil {
			return nil, false, fmt.Errorf("encode group %s: %w", groupID, err)
		}
		return next, true, nil
	})
}
