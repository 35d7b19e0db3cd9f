// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetMissing(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	doc, err := s.Get(context.Background(), Ref{Collection: "credits", ID: "u1"})
	require.NoError(t, err)
	assert.False(t, doc.Exists)
	assert.Zero(t, doc.Version)
}

func TestMemory_TransactionCreateAndRead(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()
	ref := Ref{Collection: "credits", ID: "u1"}

	err := s.RunTransaction(ctx, func(tx Tx) error {
		doc, err := tx.Get(ref)
		require.NoError(t, err)
		require.False(t, doc.Exists)
		tx.Set(ref, []byte(`{"balance":10}`))
		return nil
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	assert.Equal(t, int64(1), doc.Version)
	assert.JSONEq(t, `{"balance":10}`, string(doc.Data))
}

func TestMemory_TransactionSeesOwnWrites(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ref := Ref{Collection: "credits", ID: "u1"}

	err := s.RunTransaction(context.Background(), func(tx Tx) error {
		tx.Set(ref, []byte(`{"balance":1}`))
		doc, err := tx.Get(ref)
		require.NoError(t, err)
		assert.True(t, doc.Exists)
		assert.JSONEq(t, `{"balance":1}`, string(doc.Data))
		return nil
	})
	require.NoError(t, err)
}

// A document modified between a transaction's read and its commit must
// fail the whole transaction with ErrWriteConflict and write nothing.
func TestMemory_TransactionWriteConflict(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()
	ref := Ref{Collection: "credits", ID: "u1"}
	require.NoError(t, s.BatchWrite(ctx, []Op{{Kind: OpPut, Ref: ref, Data: []byte(`{"balance":10}`)}}))

	err := s.RunTransaction(ctx, func(tx Tx) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		// concurrent writer sneaks in after our read
		require.NoError(t, s.BatchWrite(ctx, []Op{{Kind: OpPut, Ref: ref, Data: []byte(`{"balance":9}`)}}))
		tx.Set(ref, []byte(`{"balance":4}`))
		return nil
	})
	require.ErrorIs(t, err, ErrWriteConflict)

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":9}`, string(doc.Data), "conflicting transaction must not write")
}

// Observing absence is a read too: if the document appears before commit,
// the creating transaction conflicts instead of overwriting it.
func TestMemory_TransactionConflictOnAppearedDocument(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()
	ref := Ref{Collection: "mappings", ID: "m1"}

	err := s.RunTransaction(ctx, func(tx Tx) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		require.NoError(t, s.BatchWrite(ctx, []Op{{Kind: OpPut, Ref: ref, Data: []byte(`{"category":"food"}`)}}))
		tx.Set(ref, []byte(`{"category":"travel"}`))
		return nil
	})
	require.ErrorIs(t, err, ErrWriteConflict)

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"food"}`, string(doc.Data))
}

func TestMemory_TransactionFnErrorAborts(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ref := Ref{Collection: "credits", ID: "u1"}
	sentinel := errors.New("nope")

	err := s.RunTransaction(context.Background(), func(tx Tx) error {
		tx.Set(ref, []byte(`{}`))
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	doc, err := s.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, doc.Exists)
}

func TestMemory_BatchWriteCap(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	ops := make([]Op, MaxBatchOps+1)
	for i := range ops {
		ops[i] = Op{Kind: OpPut, Ref: Ref{Collection: "tx", ID: fmt.Sprintf("t%d", i)}, Data: []byte(`{}`)}
	}
	err := s.BatchWrite(context.Background(), ops)
	require.ErrorIs(t, err, ErrBatchTooLarge)

	require.NoError(t, s.BatchWrite(context.Background(), ops[:MaxBatchOps]))
}

func TestMemory_ServerTimeStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemory(WithClock(func() time.Time { return fixed }))
	defer s.Close()
	ctx := context.Background()

	t1, err := s.ServerTime(ctx)
	require.NoError(t, err)
	t2, err := s.ServerTime(ctx)
	require.NoError(t, err)
	assert.True(t, t2.After(t1), "server time must be strictly increasing even with a stalled clock")
}

func TestMemory_WatchDeliversInitialAndUpdates(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()
	ref := Ref{Collection: "groups", ID: "g1"}

	sub, err := s.Watch(ctx, ref)
	require.NoError(t, err)
	defer sub.Close()

	initial := recvDoc(t, sub)
	assert.False(t, initial.Exists)

	require.NoError(t, s.BatchWrite(ctx, []Op{{Kind: OpPut, Ref: ref, Data: []byte(`{"v":1}`)}}))
	next := recvDoc(t, sub)
	assert.True(t, next.Exists)
	assert.Equal(t, int64(1), next.Version)
}

// A slow consumer may miss intermediate snapshots but always converges on
// the latest one, and versions never go backwards.
func TestMemory_WatchCoalescesToLatest(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()
	ref := Ref{Collection: "groups", ID: "g1"}

	sub, err := s.Watch(ctx, ref)
	require.NoError(t, err)
	defer sub.Close()
	recvDoc(t, sub) // initial

	for i := 1; i <= 20; i++ {
		require.NoError(t, s.BatchWrite(ctx, []Op{{Kind: OpPut, Ref: ref, Data: []byte(fmt.Sprintf(`{"v":%d}`, i))}}))
	}

	var last int64
	deadline := time.After(2 * time.Second)
	for last < 20 {
		select {
		case doc := <-sub.Snapshots():
			require.GreaterOrEqual(t, doc.Version, last, "versions must be non-decreasing")
			last = doc.Version
		case <-deadline:
			t.Fatalf("timed out waiting for latest snapshot, got version %d", last)
		}
	}
}

func TestMemory_WatchCloseStopsDelivery(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()
	ref := Ref{Collection: "groups", ID: "g1"}

	sub, err := s.Watch(ctx, ref)
	require.NoError(t, err)
	recvDoc(t, sub)
	sub.Close()

	_, open := <-sub.Snapshots()
	assert.False(t, open, "snapshot channel must close after Close")
}

func TestMemory_WatchContextCancel(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	ref := Ref{Collection: "groups", ID: "g1"}

	sub, err := s.Watch(ctx, ref)
	require.NoError(t, err)
	recvDoc(t, sub)

	cancel()
	select {
	case _, open := <-sub.Snapshots():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not terminate on context cancel")
	}
}

func TestMemory_WriteRuleRejectsTransaction(t *testing.T) {
	rule := func(actor string, before, after Doc) error {
		if actor != "alice" {
			return errors.New("only alice may write")
		}
		return nil
	}
	s := NewMemory(WithRule("groups", rule))
	defer s.Close()
	ref := Ref{Collection: "groups", ID: "g1"}

	ctx := WithActor(context.Background(), "bob")
	err := s.RunTransaction(ctx, func(tx Tx) error {
		tx.Set(ref, []byte(`{}`))
		return nil
	})
	require.ErrorIs(t, err, ErrRuleViolation)

	ctx = WithActor(context.Background(), "alice")
	require.NoError(t, s.RunTransaction(ctx, func(tx Tx) error {
		tx.Set(ref, []byte(`{}`))
		return nil
	}))
}

// Two goroutines race the same counter through single-attempt
// transactions; exactly one commit per round survives, so retried losers
// produce an exact final count.
func TestMemory_ConcurrentTransactionsConverge(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()
	ref := Ref{Collection: "credits", ID: "u1"}
	require.NoError(t, s.BatchWrite(ctx, []Op{{Kind: OpPut, Ref: ref, Data: []byte(`{"n":0}`)}}))

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				for {
					err := s.RunTransaction(ctx, func(tx Tx) error {
						doc, err := tx.Get(ref)
						if err != nil {
							return err
						}
						var body struct {
							N int `json:"n"`
						}
						if err := doc.Decode(&body); err != nil {
							return err
						}
						body.N++
						tx.Set(ref, []byte(fmt.Sprintf(`{"n":%d}`, body.N)))
						return nil
					})
					if err == nil {
						break
					}
					if !errors.Is(err, ErrWriteConflict) {
						t.Errorf("unexpected error: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	var body struct {
		N int `json:"n"`
	}
	require.NoError(t, doc.Decode(&body))
	assert.Equal(t, workers*perWorker, body.N)
}

func recvDoc(t *testing.T, sub Subscription) Doc {
	t.Helper()
	select {
	case doc := <-sub.Snapshots():
		return doc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Doc{}
	}
}
