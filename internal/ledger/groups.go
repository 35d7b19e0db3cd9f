// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/guard"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

// GroupService manages shared group documents: creation, membership and
// the invariants around the member_updates map.
type GroupService struct {
	store docstore.Store
	guard *guard.Guard
	log   *logger.Logger
}

// NewGroupService returns a GroupService.
func NewGroupService(store docstore.Store, g *guard.Guard, log *logger.Logger) *GroupService {
	return &GroupService{store: store, guard: g, log: log}
}

func groupRef(groupID string) docstore.Ref {
	return docstore.Ref{Collection: GroupsCollection, ID: groupID}
}

// Create makes a new group owned by ownerID, with the owner as the sole
// member.
func (s *GroupService) Create(ctx context.Context, ownerID string) (models.SharedGroup, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.SharedGroup{}, fmt.Errorf("generate group id: %w", err)
	}
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return models.SharedGroup{}, fmt.Errorf("server time: %w", err)
	}

	group := models.SharedGroup{
		ID:            id.String(),
		OwnerID:       ownerID,
		Members:       []string{ownerID},
		MemberUpdates: map[string]time.Time{},
		CreatedAt:     now,
	}

	ctx = docstore.WithActor(ctx, ownerID)
	err = s.guard.Mutate(ctx, groupRef(group.ID), func(cur docstore.Doc) ([]byte, bool, error) {
		if cur.Exists {
			return nil, false, fmt.Errorf("group id collision %s: %w", group.ID, guard.ErrPreconditionNotMet)
		}
		data, err := json.Marshal(group)
		if err != nil {
			return nil, false, fmt.Errorf("encode group: %w", err)
		}
		return data, true, nil
	})
	if err != nil {
		return models.SharedGroup{}, err
	}

	s.log.Info().Str("func", "Create").Str("group_id", group.ID).Str("owner", ownerID).Msg("group created")
	return group, nil
}

// Get reads a group document.
func (s *GroupService) Get(ctx context.Context, groupID string) (models.SharedGroup, error) {
	doc, err := s.store.Get(ctx, groupRef(groupID))
	if err != nil {
		return models.SharedGroup{}, fmt.Errorf("read group %s: %w", groupID, err)
	}
	if !doc.Exists {
		return models.SharedGroup{}, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}

	var group models.SharedGroup
	if err = doc.Decode(&group); err != nil {
		return models.SharedGroup{}, fmt.Errorf("decode group %s: %w", groupID, err)
	}
	return group, nil
}

// AddMember adds member to the group. Only the owner manages membership,
// and the group never grows past models.MaxGroupMembers.
func (s *GroupService) AddMember(ctx context.Context, groupID, actor, member string) error {
	ctx = docstore.WithActor(ctx, actor)
	return s.guard.Mutate(ctx, groupRef(groupID), func(cur docstore.Doc) ([]byte, bool, error) {
		group, err := decodeGroup(cur, groupID)
		if err != nil {
			return nil, false, err
		}
		if group.OwnerID != actor {
			return nil, false, fmt.Errorf("%w: %s: %w", ErrNotOwner, actor, guard.ErrPreconditionNotMet)
		}
		if group.HasMember(member) {
			return nil, false, nil
		}
		if len(group.Members) >= models.MaxGroupMembers {
			return nil, false, fmt.Errorf("%w at %d members: %w", ErrGroupFull, len(group.Members), guard.ErrPreconditionNotMet)
		}

		group.Members = append(group.Members, member)
		data, err := json.Marshal(group)
		if err != nil {
			return nil, false, fmt.Errorf("encode group %s: %w", groupID, err)
		}
		return data, true, nil
	})
}

// RemoveMember removes member from the group along with its stamp entry.
// The write rule permits dropping another member's stamp only together
// with the membership removal.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, actor, member string) error {
	ctx = docstore.WithActor(ctx, actor)
	return s.guard.Mutate(ctx, groupRef(groupID), func(cur docstore.Doc) ([]byte, bool, error) {
		group, err := decodeGroup(cur, groupID)
		if err != nil {
			return nil, false, err
		}
		if group.OwnerID != actor && actor != member {
			return nil, false, fmt.Errorf("%w: %s: %w", ErrNotOwner, actor, guard.ErrPreconditionNotMet)
		}
		if !group.HasMember(member) {
			return nil, false, nil
		}

		members := group.Members[:0:0]
		for _, m := range group.Members {
			if m != member {
				members = append(members, m)
			}
		}
		group.Members = members
		delete(group.MemberUpdates, member)

		data, err := json.Marshal(group)
		if err != nil {
			return nil, false, fmt.Errorf("encode group %s: %w", groupID, err)
		}
		return data, true, nil
	})
}

func decodeGroup(cur docstore.Doc, groupID string) (models.SharedGroup, error) {
	if !cur.Exists {
		return models.SharedGroup{}, fmt.Errorf("group %s: %w: %w", groupID, ErrNotFound, guard.ErrPreconditionNotMet)
	}
	var group models.SharedGroup
	if err := cur.Decode(&group); err != nil {
		return models.SharedGroup{}, fmt.Errorf("decode group %s: %w", groupID, err)
	}
	return group, nil
}

// GroupWriteRule is the store-side enforcement of the member_updates
// invariant for the in-memory backend, mirroring the database trigger of
// the PostgreSQL backend: an actor may only create or change its own
// stamp entry, and may only drop another member's entry together with
// that member's removal from the group.
func GroupWriteRule(actor string, before, after docstore.Doc) error {
	if actor == "" || !after.Exists {
		return nil
	}

	var prev, next models.SharedGroup
	if before.Exists {
		if err := before.Decode(&prev); err != nil {
			return fmt.Errorf("decode group before write: %w", err)
		}
	}
	if err := after.Decode(&next); err != nil {
		return fmt.Errorf("decode group after write: %w", err)
	}

	for member, at := range next.MemberUpdates {
		if member == actor {
			continue
		}
		if prevAt, ok := prev.MemberUpdates[member]; !ok || !prevAt.Equal(at) {
			return fmt.Errorf("actor %s may not write stamp of %s: %w", actor, member, docstore.ErrRuleViolation)
		}
	}
	for member := range prev.MemberUpdates {
		if member == actor {
			continue
		}
		if _, ok := next.MemberUpdates[member]; !ok && next.HasMember(member) {
			return fmt.Errorf("actor %s may not remove stamp of %s: %w", actor, member, docstore.ErrRuleViolation)
		}
	}
	return nil
}
