// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type document struct {
	data      []byte
	version   int64
	updatedAt time.Time
}

// Memory is the in-memory Store used by tests and embedded single-process
// deployments. It implements optimistic concurrency exactly as the
// contract demands: transactions record the version of every document they
// read and fail with ErrWriteConflict at commit when any of those versions
// moved.
type Memory struct {
	mu       sync.Mutex
	docs     map[Ref]*document
	rules    map[string]WriteRule
	watchers map[Ref]map[*docWatcher]struct{}

	clock    func() time.Time
	lastTime time.Time

	closed bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithRule installs a write rule for every document of the given
// collection.
func WithRule(collection string, rule WriteRule) MemoryOption {
	return func(m *Memory) { m.rules[collection] = rule }
}

// WithClock replaces the server clock; tests use it to make server-assigned
// timestamps deterministic.
func WithClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) { m.clock = clock }
}

// NewMemory constructs an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		docs:     make(map[Ref]*document),
		rules:    make(map[string]WriteRule),
		watchers: make(map[Ref]map[*docWatcher]struct{}),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// serverTimeLocked returns a strictly increasing timestamp. Callers must
// hold m.mu. Strict monotonicity keeps stamp comparisons meaningful even
// when the wall clock stalls within its resolution.
func (m *Memory) serverTimeLocked() time.Time {
	t := m.clock()
	if !t.After(m.lastTime) {
		t = m.lastTime.Add(time.Microsecond)
	}
	m.lastTime = t
	return t
}

func (m *Memory) snapshotLocked(ref Ref) Doc {
	d, ok := m.docs[ref]
	if !ok {
		return Doc{Ref: ref}
	}
	data := make([]byte, len(d.data))
	copy(data, d.data)
	return Doc{Ref: ref, Data: data, Version: d.version, UpdatedAt: d.updatedAt, Exists: true}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, ref Ref) (Doc, error) {
	if err := ctx.Err(); err != nil {
		return Doc{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Doc{}, ErrStoreClosed
	}
	return m.snapshotLocked(ref), nil
}

// ServerTime implements Store.
func (m *Memory) ServerTime(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return time.Time{}, ErrStoreClosed
	}
	return m.serverTimeLocked(), nil
}

type txWrite struct {
	kind OpKind
	data []byte
}

type memoryTx struct {
	store  *Memory
	reads  map[Ref]int64
	writes map[Ref]*txWrite
	order  []Ref
}

func (tx *memoryTx) Get(ref Ref) (Doc, error) {
	// A read of this transaction's own buffered write observes the
	// pending state, not the committed one.
	if w, ok := tx.writes[ref]; ok {
		if w.kind == OpDelete {
			return Doc{Ref: ref}, nil
		}
		data := make([]byte, len(w.data))
		copy(data, w.data)
		return Doc{Ref: ref, Data: data, Exists: true}, nil
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if tx.store.closed {
		return Doc{}, ErrStoreClosed
	}

	doc := tx.store.snapshotLocked(ref)
	if _, seen := tx.reads[ref]; !seen {
		tx.reads[ref] = doc.Version
	}
	return doc, nil
}

func (tx *memoryTx) Set(ref Ref, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	if _, ok := tx.writes[ref]; !ok {
		tx.order = append(tx.order, ref)
	}
	tx.writes[ref] = &txWrite{kind: OpPut, data: buf}
}

func (tx *memoryTx) Delete(ref Ref) {
	if _, ok := tx.writes[ref]; !ok {
		tx.order = append(tx.order, ref)
	}
	tx.writes[ref] = &txWrite{kind: OpDelete}
}

// RunTransaction implements Store. Single attempt: the commit-time version
// check failing surfaces ErrWriteConflict to the caller.
func (m *Memory) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:  m,
		reads:  make(map[Ref]int64),
		writes: make(map[Ref]*txWrite),
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	// Validate every recorded read against the current version, including
	// reads that observed absence (version 0).
	for ref, readVersion := range tx.reads {
		var current int64
		if d, ok := m.docs[ref]; ok {
			current = d.version
		}
		if current != readVersion {
			return fmt.Errorf("%w: %s", ErrWriteConflict, ref)
		}
	}

	actor, _ := ActorFromContext(ctx)
	for _, ref := range tx.order {
		rule, ok := m.rules[ref.Collection]
		if !ok {
			continue
		}
		if err := rule(actor, m.snapshotLocked(ref), tx.pendingDoc(ref)); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRuleViolation, ref, err)
		}
	}

	m.applyLocked(tx.order, tx.writes)
	return nil
}

func (tx *memoryTx) pendingDoc(ref Ref) Doc {
	w := tx.writes[ref]
	if w == nil || w.kind == OpDelete {
		return Doc{Ref: ref}
	}
	return Doc{Ref: ref, Data: w.data, Exists: true}
}

// applyLocked commits buffered writes and fans snapshots out to watchers.
// Callers must hold m.mu.
func (m *Memory) applyLocked(order []Ref, writes map[Ref]*txWrite) {
	now := m.serverTimeLocked()
	for _, ref := range order {
		w := writes[ref]
		switch w.kind {
		case OpPut:
			d, ok := m.docs[ref]
			if !ok {
				d = &document{}
				m.docs[ref] = d
			}
			d.data = w.data
			d.version++
			d.updatedAt = now
		case OpDelete:
			delete(m.docs, ref)
		}

		snapshot := m.snapshotLocked(ref)
		for watcher := range m.watchers[ref] {
			watcher.Publish(snapshot)
		}
	}
}

// BatchWrite implements Store. The operation set is one unit of atomicity;
// writes are blind (no version check), matching the semantics of batched
// writes in hosted document stores.
func (m *Memory) BatchWrite(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) > MaxBatchOps {
		return fmt.Errorf("%w: %d ops, cap %d", ErrBatchTooLarge, len(ops), MaxBatchOps)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	actor, _ := ActorFromContext(ctx)
	writes := make(map[Ref]*txWrite, len(ops))
	order := make([]Ref, 0, len(ops))
	for _, op := range ops {
		if rule, ok := m.rules[op.Ref.Collection]; ok {
			after := Doc{Ref: op.Ref, Data: op.Data, Exists: op.Kind == OpPut}
			if err := rule(actor, m.snapshotLocked(op.Ref), after); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrRuleViolation, op.Ref, err)
			}
		}
		if _, ok := writes[op.Ref]; !ok {
			order = append(order, op.Ref)
		}
		data := make([]byte, len(op.Data))
		copy(data, op.Data)
		writes[op.Ref] = &txWrite{kind: op.Kind, data: data}
	}

	m.applyLocked(order, writes)
	return nil
}

// Watch implements Store. The current snapshot (which may be a
// non-existent document) is delivered first.
func (m *Memory) Watch(ctx context.Context, ref Ref) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrStoreClosed
	}

	var watcher *docWatcher
	watcher = newDocWatcher(func() {
		m.mu.Lock()
		if set, ok := m.watchers[ref]; ok {
			delete(set, watcher)
			if len(set) == 0 {
				delete(m.watchers, ref)
			}
		}
		m.mu.Unlock()
	})

	set, ok := m.watchers[ref]
	if !ok {
		set = make(map[*docWatcher]struct{})
		m.watchers[ref] = set
	}
	set[watcher] = struct{}{}
	watcher.Publish(m.snapshotLocked(ref))
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			watcher.Close()
		case <-watcher.done:
		}
	}()

	return watcher, nil
}

// Close implements Store. All subscriptions are torn down.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var watchers []*docWatcher
	for _, set := range m.watchers {
		for w := range set {
			watchers = append(watchers, w)
		}
	}
	m.watchers = make(map[Ref]map[*docWatcher]struct{})
	m.mu.Unlock()

	for _, w := range watchers {
		w.Close()
	}
	return nil
}
