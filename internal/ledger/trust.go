// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okazakov/go-spend-sync/internal/docid"
	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/guard"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

// TrustService manages trust records between users. Transitions are
// validated against the state read inside the guarded transaction, so two
// concurrent transitions on the same record serialize: one applies, the
// other is re-evaluated against the new state and rejected if the edge is
// no longer legal.
type TrustService struct {
	store docstore.Store
	guard *guard.Guard
	log   *logger.Logger
}

// NewTrustService returns a TrustService.
func NewTrustService(store docstore.Store, g *guard.Guard, log *logger.Logger) *TrustService {
	return &TrustService{store: store, guard: g, log: log}
}

func trustRef(userID, peerID string) docstore.Ref {
	return docstore.Ref{Collection: TrustCollection, ID: docid.ForScopedKey(userID, peerID)}
}

// Request creates a pending trust request toward peerID, or re-opens a
// revoked one. A pending or granted record rejects the request.
func (s *TrustService) Request(ctx context.Context, userID, peerID string) error {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}

	ref := trustRef(userID, peerID)
	return s.guard.Mutate(ctx, ref, func(cur docstore.Doc) ([]byte, bool, error) {
		record := models.TrustRecord{
			ID:     ref.ID,
			UserID: userID,
			PeerID: peerID,
		}
		if cur.Exists {
			if err := cur.Decode(&record); err != nil {
				return nil, false, fmt.Errorf("decode trust record %s: %w", ref.ID, err)
			}
			if !record.State.CanTransition(models.TrustPending) {
				return nil, false, fmt.Errorf("%w: %s -> %s: %w",
					ErrInvalidTransition, record.State, models.TrustPending, guard.ErrPreconditionNotMet)
			}
		}
		record.State = models.TrustPending
		record.UpdatedAt = now

		data, err := json.Marshal(record)
		if err != nil {
			return nil, false, fmt.Errorf("encode trust record %s: %w", ref.ID, err)
		}
		return data, true, nil
	})
}

// Transition moves an existing trust record to next. Illegal edges and
// missing records are precondition failures, never retried.
func (s *TrustService) Transition(ctx context.Context, userID, peerID string, next models.TrustState) error {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}

	ref := trustRef(userID, peerID)
	return s.guard.Mutate(ctx, ref, func(cur docstore.Doc) ([]byte, bool, error) {
		if !cur.Exists {
			return nil, false, fmt.Errorf("trust record %s: %w: %w", ref.ID, ErrNotFound, guard.ErrPreconditionNotMet)
		}

		var record models.TrustRecord
		if err := cur.Decode(&record); err != nil {
			return nil, false, fmt.Errorf("decode trust record %s: %w", ref.ID, err)
		}
		if record.State == next {
			return nil, false, nil
		}
		if !record.State.CanTransition(next) {
			return nil, false, fmt.Errorf("%w: %s -> %s: %w",
				ErrInvalidTransition, record.State, next, guard.ErrPreconditionNotMet)
		}

		record.State = next
		record.UpdatedAt = now

		data, err := json.Marshal(record)
		if err != nil {
			return nil, false, fmt.Errorf("encode trust record %s: %w", ref.ID, err)
		}
		return data, true, nil
	})
}

// State returns the current trust state toward a peer. A missing record
// reads as revoked.
func (s *TrustService) State(ctx context.Context, userID, peerID string) (models.TrustState, error) {
	doc, err := s.store.Get(ctx, trustRef(userID, peerID))
	if err != nil {
		return "", fmt.Errorf("read trust record: %w", err)
	}
	if !doc.Exists {
		return models.TrustRevoked, nil
	}

	var record models.TrustRecord
	if err = doc.Decode(&record); err != nil {
		return "", fmt.Errorf("decode trust record: %w", err)
	}
	return record.State, nil
}
