// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/guard"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

// CreditService manages per-user scan credit balances. Deductions are
// conditional on sufficient balance and always computed from the state
// read inside the guarded transaction, so concurrent spenders can never
// drive a balance negative.
type CreditService struct {
	store docstore.Store
	guard *guard.Guard
	log   *logger.Logger
}

// NewCreditService returns a CreditService.
func NewCreditService(store docstore.Store, g *guard.Guard, log *logger.Logger) *CreditService {
	return &CreditService{store: store, guard: g, log: log}
}

func creditRef(userID string) docstore.Ref {
	return docstore.Ref{Collection: CreditsCollection, ID: userID}
}

// Balance returns the user's current balance. A user without an account
// has balance zero.
func (s *CreditService) Balance(ctx context.Context, userID string) (int64, error) {
	doc, err := s.store.Get(ctx, creditRef(userID))
	if err != nil {
		return 0, fmt.Errorf("read credit account %s: %w", userID, err)
	}
	if !doc.Exists {
		return 0, nil
	}

	var acc models.CreditAccount
	if err = doc.Decode(&acc); err != nil {
		return 0, fmt.Errorf("decode credit account %s: %w", userID, err)
	}
	return acc.Balance, nil
}

// Grant adds amount credits, creating the account on first grant.
func (s *CreditService) Grant(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount %d: %w", amount, guard.ErrPreconditionNotMet)
	}
	return s.mutateBalance(ctx, userID, func(balance int64) (int64, error) {
		return balance + amount, nil
	})
}

// Deduct spends amount credits. Returns ErrInsufficientCredits when the
// balance read inside the transaction is too low; losers of a concurrent
// race re-read and get the same rejection instead of a negative balance.
func (s *CreditService) Deduct(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deduct amount %d: %w", amount, guard.ErrPreconditionNotMet)
	}
	return s.mutateBalance(ctx, userID, func(balance int64) (int64, error) {
		if balance < amount {
			return 0, fmt.Errorf("balance %d below %d: %w: %w", balance, amount, ErrInsufficientCredits, guard.ErrPreconditionNotMet)
		}
		return balance - amount, nil
	})
}

func (s *CreditService) mutateBalance(ctx context.Context, userID string, apply func(balance int64) (int64, error)) error {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}

	return s.guard.Mutate(ctx, creditRef(userID), func(cur docstore.Doc) ([]byte, bool, error) {
		acc := models.CreditAccount{UserID: userID}
		if cur.Exists {
			if err := cur.Decode(&acc); err != nil {
				return nil, false, fmt.Errorf("decode credit account %s: %w", userID, err)
			}
		}

		next, err := apply(acc.Balance)
		if err != nil {
			return nil, false, err
		}
		acc.Balance = next
		acc.UpdatedAt = now

		data, err := json.Marshal(acc)
		if err != nil {
			return nil, false, fmt.Errorf("encode credit account %s: %w", userID, err)
		}
		return data, true, nil
	})
}
