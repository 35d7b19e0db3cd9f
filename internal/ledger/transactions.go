// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/okazakov/go-spend-sync/internal/batch"
	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/guard"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/syncer"
	"github.com/okazakov/go-spend-sync/models"
)

// TransactionService manages expense records. Mutations of group-tagged
// transactions stamp the group afterwards; the stamp is advisory and
// never fails the mutation.
type TransactionService struct {
	store   docstore.Store
	guard   *guard.Guard
	batch   *batch.Coordinator
	stamper *syncer.Stamper
	log     *logger.Logger
}

// NewTransactionService returns a TransactionService.
func NewTransactionService(store docstore.Store, g *guard.Guard, coordinator *batch.Coordinator, stamper *syncer.Stamper, log *logger.Logger) *TransactionService {
	return &TransactionService{store: store, guard: g, batch: coordinator, stamper: stamper, log: log}
}

func transactionRef(id string) docstore.Ref {
	return docstore.Ref{Collection: TransactionsCollection, ID: id}
}

// Record creates a new transaction with a fresh ID and server-assigned
// update time.
func (s *TransactionService) Record(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.Transaction{}, fmt.Errorf("generate transaction id: %w", err)
	}
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("server time: %w", err)
	}

	tx.ID = id.String()
	tx.UpdatedAt = now
	tx.Version = 0
	tx.Deleted = false

	err = s.guard.Mutate(ctx, transactionRef(tx.ID), func(cur docstore.Doc) ([]byte, bool, error) {
		if cur.Exists {
			return nil, false, fmt.Errorf("transaction id collision %s: %w", tx.ID, guard.ErrPreconditionNotMet)
		}
		data, err := json.Marshal(tx)
		if err != nil {
			return nil, false, fmt.Errorf("encode transaction: %w", err)
		}
		return data, true, nil
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.stampGroup(ctx, tx.GroupID, tx.OwnerID)
	return tx, nil
}

// Edit replaces a transaction's mutable fields. The edit carries the
// version it was computed from; if the stored version moved on, the edit
// is stale and rejected so the caller can reload and redo it on fresh
// data.
func (s *TransactionService) Edit(ctx context.Context, actor string, tx models.Transaction) error {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}

	err = s.guard.Mutate(ctx, transactionRef(tx.ID), func(cur docstore.Doc) ([]byte, bool, error) {
		if !cur.Exists {
			return nil, false, fmt.Errorf("transaction %s: %w: %w", tx.ID, ErrNotFound, guard.ErrPreconditionNotMet)
		}
		if cur.Version != tx.Version {
			return nil, false, fmt.Errorf("%w: transaction %s is at v%d, edit based on v%d: %w",
				ErrStaleEdit, tx.ID, cur.Version, tx.Version, guard.ErrPreconditionNotMet)
		}

		var stored models.Transaction
		if err := cur.Decode(&stored); err != nil {
			return nil, false, fmt.Errorf("decode transaction %s: %w", tx.ID, err)
		}
		if stored.Deleted {
			return nil, false, fmt.Errorf("transaction %s is deleted: %w", tx.ID, guard.ErrPreconditionNotMet)
		}

		stored.Merchant = tx.Merchant
		stored.Amount = tx.Amount
		stored.Currency = tx.Currency
		stored.Category = tx.Category
		stored.Note = tx.Note
		stored.OccurredAt = tx.OccurredAt
		stored.UpdatedAt = now
		stored.Version = cur.Version + 1

		data, err := json.Marshal(stored)
		if err != nil {
			return nil, false, fmt.Errorf("encode transaction %s: %w", tx.ID, err)
		}
		return data, true, nil
	})
	if err != nil {
		return err
	}

	s.stampGroup(ctx, tx.GroupID, actor)
	return nil
}

// Delete soft-deletes a transaction so the removal travels through delta
// responses to every member.
func (s *TransactionService) Delete(ctx context.Context, actor, id string, baseVersion int64) error {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}

	var groupID string
	err = s.guard.Mutate(ctx, transactionRef(id), func(cur docstore.Doc) ([]byte, bool, error) {
		if !cur.Exists {
			return nil, false, fmt.Errorf("transaction %s: %w: %w", id, ErrNotFound, guard.ErrPreconditionNotMet)
		}
		if cur.Version != baseVersion {
			return nil, false, fmt.Errorf("%w: transaction %s is at v%d, delete based on v%d: %w",
				ErrStaleEdit, id, cur.Version, baseVersion, guard.ErrPreconditionNotMet)
		}

		var stored models.Transaction
		if err := cur.Decode(&stored); err != nil {
			return nil, false, fmt.Errorf("decode transaction %s: %w", id, err)
		}
		if stored.Deleted {
			return nil, false, nil
		}
		groupID = stored.GroupID

		stored.Deleted = true
		stored.UpdatedAt = now
		stored.Version = cur.Version + 1

		data, err := json.Marshal(stored)
		if err != nil {
			return nil, false, fmt.Errorf("encode transaction %s: %w", id, err)
		}
		return data, true, nil
	})
	if err != nil {
		return err
	}

	s.stampGroup(ctx, groupID, actor)
	return nil
}

// Get reads a transaction.
func (s *TransactionService) Get(ctx context.Context, id string) (models.Transaction, error) {
	doc, err := s.store.Get(ctx, transactionRef(id))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("read transaction %s: %w", id, err)
	}
	if !doc.Exists {
		return models.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}

	var tx models.Transaction
	if err = doc.Decode(&tx); err != nil {
		return models.Transaction{}, fmt.Errorf("decode transaction %s: %w", id, err)
	}
	tx.Version = doc.Version
	return tx, nil
}

// ImportBatch writes a bulk of transactions (a statement import) through
// the chunking batch coordinator and stamps the group once at the end.
// Partial failure is a normal outcome reported through BatchResult.
func (s *TransactionService) ImportBatch(ctx context.Context, actor, groupID string, txs []models.Transaction) (models.BatchResult, error) {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("server time: %w", err)
	}

	ops := make([]docstore.Op, 0, len(txs))
	for i := range txs {
		tx := txs[i]
		if tx.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return models.BatchResult{}, fmt.Errorf("generate transaction id: %w", err)
			}
			tx.ID = id.String()
		}
		tx.GroupID = groupID
		tx.OwnerID = actor
		tx.UpdatedAt = now

		data, err := json.Marshal(tx)
		if err != nil {
			return models.BatchResult{}, fmt.Errorf("encode transaction %s: %w", tx.ID, err)
		}
		ops = append(ops, docstore.Op{Kind: docstore.OpPut, Ref: transactionRef(tx.ID), Data: data})
	}

	result, err := s.batch.Commit(ctx, ops)
	if err != nil {
		return result, fmt.Errorf("import batch: %w", err)
	}

	// stamped regardless of chunk outcomes: a retried import must be
	// picked up by members even when this attempt wrote nothing
	s.stampGroup(ctx, groupID, actor)
	return result, nil
}

func (s *TransactionService) stampGroup(ctx context.Context, groupID, actor string) {
	if groupID == "" || s.stamper == nil {
		return
	}
	s.stamper.Stamp(ctx, groupID, actor)
}
