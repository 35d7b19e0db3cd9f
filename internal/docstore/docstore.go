// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package docstore defines the document store contract the synchronization
// layer is built on, together with the two shipped backends: an in-memory
// store for tests and embedded use, and a PostgreSQL store for deployment.
//
// The contract is deliberately small: single-document reads, a
// single-attempt optimistic transaction (the retry loop lives in the
// mutation guard, not here), a capped batched write, a per-document push
// subscription delivering the full current document on every change, and a
// server-assigned clock usable as an ordering token.
package docstore

import (
	"context"
	"encoding/json"
	"time"
)

// MaxBatchOps is the hard cap on the number of operations a single
// BatchWrite call accepts. Larger operation sets must be chunked by the
// batch coordinator.
const MaxBatchOps = 500

// Ref identifies a document by collection and ID.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// Doc is a point-in-time snapshot of a document. Version is the
// store-assigned write counter, starting at 1 on creation; a Doc with
// Exists == false has zero Version and nil Data.
type Doc struct {
	Ref       Ref
	Data      []byte
	Version   int64
	UpdatedAt time.Time
	Exists    bool
}

// Decode unmarshals the document body into v.
func (d Doc) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Tx is the handle passed to a transaction function. Reads observe the
// current committed state (or this transaction's own buffered writes);
// writes are buffered and applied atomically at commit. Every read is
// version-checked at commit time: if any document read inside the
// transaction changed before commit, the whole transaction fails with
// ErrWriteConflict and nothing is written.
type Tx interface {
	// Get reads the document, recording its version for the commit-time
	// conflict check. A missing document is returned with Exists == false,
	// and its continued absence is validated at commit.
	Get(ref Ref) (Doc, error)

	// Set buffers a full-document write.
	Set(ref Ref, data []byte)

	// Delete buffers a document removal.
	Delete(ref Ref)
}

// OpKind discriminates batch operations.
type OpKind int

const (
	// OpPut writes the full document body, creating or replacing it.
	OpPut OpKind = iota

	// OpDelete removes the document if present.
	OpDelete
)

// Op is a single write inside a batch operation set.
type Op struct {
	Kind OpKind
	Ref  Ref
	Data []byte
}

// Subscription is a push channel for one document. Snapshots are delivered
// in commit order; intermediate states may be coalesced so that a slow
// consumer always observes the latest committed document, never a stale or
// reordered one. The channel is closed when the subscription ends.
type Subscription interface {
	Snapshots() <-chan Doc
	Close()
}

// Store is the document store contract.
//
// RunTransaction executes fn exactly once against a fresh view of the
// store. It does NOT retry on contention: a write-write conflict surfaces
// as ErrWriteConflict and the caller (the mutation guard) owns the retry
// loop. Any state read before RunTransaction was entered must be treated
// as stale; conditional writes must be computed from Tx.Get results only.
type Store interface {
	// Get performs a plain, non-transactional read.
	Get(ctx context.Context, ref Ref) (Doc, error)

	// RunTransaction runs fn once. An error returned by fn aborts the
	// transaction without writing and is passed through unchanged.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	// BatchWrite applies up to MaxBatchOps operations atomically.
	// Returns ErrBatchTooLarge when the cap is exceeded.
	BatchWrite(ctx context.Context, ops []Op) error

	// Watch subscribes to a single document. The current snapshot is
	// delivered first, then one snapshot per subsequent change. The
	// subscription ends when ctx is cancelled or Close is called.
	Watch(ctx context.Context, ref Ref) (Subscription, error)

	// ServerTime returns the store's clock. All ordering-sensitive
	// timestamps (member update stamps, record update times) come from
	// here, never from a client clock.
	ServerTime(ctx context.Context) (time.Time, error)

	Close() error
}

// WriteRule validates a single document write before it is applied. Rules
// are the store-side counterpart of security rules in hosted document
// databases: they run inside the commit, with the acting identity taken
// from the transaction context, and reject the whole transaction on
// violation.
type WriteRule func(actor string, before, after Doc) error
