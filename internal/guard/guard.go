// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package guard wraps the document store's single-attempt transaction in a
// bounded retry loop for optimistic-concurrency conflicts. All conditional
// multi-step mutations in the application (credit deductions, create-if-
// absent, trust transitions, stale-edit detection) go through the guard
// instead of calling RunTransaction directly.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/metrics"
)

var (
	// ErrPreconditionNotMet reports that the current document state fails a
	// business precondition (insufficient balance, invalid state transition,
	// stale edit). It is terminal: re-reading would produce the same
	// rejection, so the guard never retries it. Mutation functions return it
	// (or wrap it) to abort.
	ErrPreconditionNotMet = errors.New("precondition not met")

	// ErrTransactionFailed reports that the mutation still conflicted with
	// concurrent writers after the configured number of attempts. Nothing
	// was written.
	ErrTransactionFailed = errors.New("transaction failed")
)

// MutateFunc computes the next state of a document from its current
// committed snapshot. cur.Exists is false when the document is absent.
//
// Returning ok == false commits nothing (the mutation is a no-op for this
// state). Returning ok == true with next == nil deletes the document;
// non-nil next replaces the full body. Any error aborts without writing
// and is passed through to the caller unchanged.
//
// The function may be invoked several times, once per attempt, each time
// against a fresh snapshot. It must not capture state from a previous
// invocation and must not have side effects beyond its return values.
type MutateFunc func(cur docstore.Doc) (next []byte, ok bool, err error)

// Guard owns the retry policy for optimistic transactions.
type Guard struct {
	store docstore.Store
	log   *logger.Logger

	maxAttempts uint64
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Option customizes a Guard.
type Option func(*Guard)

// WithMaxAttempts sets the total number of transaction attempts, the first
// try included. n < 1 is treated as 1.
func WithMaxAttempts(n uint64) Option {
	return func(g *Guard) {
		if n < 1 {
			n = 1
		}
		g.maxAttempts = n
	}
}

// WithBaseDelay sets the first retry delay; subsequent delays grow
// exponentially up to the cap.
func WithBaseDelay(d time.Duration) Option {
	return func(g *Guard) { g.baseDelay = d }
}

// WithMaxDelay caps the exponential backoff.
func WithMaxDelay(d time.Duration) Option {
	return func(g *Guard) { g.maxDelay = d }
}

// New returns a Guard over store. Defaults: 5 attempts, 50ms base delay
// doubling up to 1s.
func New(store docstore.Store, log *logger.Logger, opts ...Option) *Guard {
	g := &Guard{
		store:       store,
		log:         log,
		maxAttempts: 5,
		baseDelay:   50 * time.Millisecond,
		maxDelay:    time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mutate runs a read-modify-write cycle on a single document. Each attempt
// reads the document inside a fresh transaction, applies fn to the
// snapshot, and commits the result; a commit-time write conflict schedules
// another attempt after an exponential backoff. Errors returned by fn are
// terminal and come back unchanged; conflict exhaustion comes back as
// ErrTransactionFailed.
func (g *Guard) Mutate(ctx context.Context, ref docstore.Ref, fn MutateFunc) error {
	log := g.log.With().Str("func", "Mutate").Stringer("ref", ref).Logger()

	backoff := retry.WithCappedDuration(g.maxDelay, retry.NewExponential(g.baseDelay))
	backoff = retry.WithMaxRetries(g.maxAttempts-1, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := g.store.RunTransaction(ctx, func(tx docstore.Tx) error {
			cur, err := tx.Get(ref)
			if err != nil {
				return fmt.Errorf("read %s: %w", ref, err)
			}
			next, ok, err := fn(cur)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if next == nil {
				tx.Delete(ref)
				return nil
			}
			tx.Set(ref, next)
			return nil
		})
		if errors.Is(err, docstore.ErrWriteConflict) {
			metrics.TransactionRetries.Inc()
			log.Debug().Int("attempt", attempt).Msg("write conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrWriteConflict) {
		metrics.TransactionFailures.Inc()
		log.Warn().Int("attempts", attempt).Msg("mutation exhausted retries")
		return fmt.Errorf("%w: %s contended after %d attempts: %w", ErrTransactionFailed, ref, attempt, err)
	}
	return err
}

// Run executes fn inside a guarded transaction without binding it to a
// single document. fn may read and write any number of documents through
// tx; conflicts retry the whole function. Used for multi-document
// mutations such as cross-account transfers.
func (g *Guard) Run(ctx context.Context, fn func(tx docstore.Tx) error) error {
	log := g.log.With().Str("func", "Run").Logger()

	backoff := retry.WithCappedDuration(g.maxDelay, retry.NewExponential(g.baseDelay))
	backoff = retry.WithMaxRetries(g.maxAttempts-1, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := g.store.RunTransaction(ctx, fn)
		if errors.Is(err, docstore.ErrWriteConflict) {
			metrics.TransactionRetries.Inc()
			log.Debug().Int("attempt", attempt).Msg("write conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrWriteConflict) {
		metrics.TransactionFailures.Inc()
		log.Warn().Int("attempts", attempt).Msg("transaction exhausted retries")
		return fmt.Errorf("%w: contended after %d attempts: %w", ErrTransactionFailed, attempt, err)
	}
	return err
}
