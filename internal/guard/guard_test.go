package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
)

type account struct {
	Balance int64 `json:"balance"`
}

func newTestGuard(t *testing.T, store docstore.Store) *Guard {
	t.Helper()
	return New(store, logger.Nop(), WithBaseDelay(time.Millisecond), WithMaxDelay(5*time.Millisecond))
}

func putAccount(t *testing.T, store docstore.Store, ref docstore.Ref, balance int64) {
	t.Helper()
	data, err := json.Marshal(account{Balance: balance})
	require.NoError(t, err)
	require.NoError(t, store.BatchWrite(context.Background(), []docstore.Op{
		{Kind: docstore.OpPut, Ref: ref, Data: data},
	}))
}

func getBalance(t *testing.T, store docstore.Store, ref docstore.Ref) int64 {
	t.Helper()
	doc, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	require.True(t, doc.Exists)
	var acc account
	require.NoError(t, doc.Decode(&acc))
	return acc.Balance
}

func deduct(amount int64) MutateFunc {
	return func(cur docstore.Doc) ([]byte, bool, error) {
		if !cur.Exists {
			return nil, false, fmt.Errorf("account missing: %w", ErrPreconditionNotMet)
		}
		var acc account
		if err := cur.Decode(&acc); err != nil {
			return nil, false, err
		}
		if acc.Balance < amount {
			return nil, false, fmt.Errorf("balance %d below %d: %w", acc.Balance, amount, ErrPreconditionNotMet)
		}
		acc.Balance -= amount
		next, err := json.Marshal(acc)
		return next, true, err
	}
}

func TestMutate_Simple(t *testing.T) {
	store := docstore.NewMemory()
	g := newTestGuard(t, store)
	ref := docstore.Ref{Collection: "credits", ID: "u1"}
	putAccount(t, store, ref, 10)

	require.NoError(t, g.Mutate(context.Background(), ref, deduct(3)))
	assert.Equal(t, int64(7), getBalance(t, store, ref))
}

func TestMutate_PreconditionNotRetried(t *testing.T) {
	store := docstore.NewMemory()
	g := newTestGuard(t, store)
	ref := docstore.Ref{Collection: "credits", ID: "u1"}
	putAccount(t, store, ref, 2)

	calls := 0
	err := g.Mutate(context.Background(), ref, func(cur docstore.Doc) ([]byte, bool, error) {
		calls++
		return deduct(5)(cur)
	})
	require.ErrorIs(t, err, ErrPreconditionNotMet)
	assert.Equal(t, 1, calls, "terminal precondition failures must not be retried")
	assert.Equal(t, int64(2), getBalance(t, store, ref))
}

func TestMutate_NoOp(t *testing.T) {
	store := docstore.NewMemory()
	g := newTestGuard(t, store)
	ref := docstore.Ref{Collection: "credits", ID: "u1"}
	putAccount(t, store, ref, 2)

	before, err := store.Get(context.Background(), ref)
	require.NoError(t, err)

	require.NoError(t, g.Mutate(context.Background(), ref, func(docstore.Doc) ([]byte, bool, error) {
		return nil, false, nil
	}))

	after, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "declined mutation must not bump the version")
}

func TestMutate_Delete(t *testing.T) {
	store := docstore.NewMemory()
	g := newTestGuard(t, store)
	ref := docstore.Ref{Collection: "credits", ID: "u1"}
	putAccount(t, store, ref, 0)

	require.NoError(t, g.Mutate(context.Background(), ref, func(cur docstore.Doc) ([]byte, bool, error) {
		require.True(t, cur.Exists)
		return nil, true, nil
	}))

	doc, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, doc.Exists)
}

// Two clients deduct 6 from a balance of 10 at the same time. Exactly one
// deduction may win; the final balance is 4, never negative.
func TestMutate_ConcurrentDeductions(t *testing.T) {
	store := docstore.NewMemory()
	g := newTestGuard(t, store)
	ref := docstore.Ref{Collection: "credits", ID: "u1"}
	putAccount(t, store, ref, 10)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.Mutate(context.Background(), ref, deduct(6))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrPreconditionNotMet)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(4), getBalance(t, store, ref))
}

// Many writers hammer one counter; every increment must land exactly once.
func TestMutate_ConcurrentIncrements(t *testing.T) {
	store := docstore.NewMemory()
	g := New(store, logger.Nop(),
		WithMaxAttempts(100),
		WithBaseDelay(100*time.Microsecond),
		WithMaxDelay(time.Millisecond))
	ref := docstore.Ref{Collection: "credits", ID: "counter"}
	putAccount(t, store, ref, 0)

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				err := g.Mutate(context.Background(), ref, func(cur docstore.Doc) ([]byte, bool, error) {
					var acc account
					if err := cur.Decode(&acc); err != nil {
						return nil, false, err
					}
					acc.Balance++
					next, err := json.Marshal(acc)
					return next, true, err
				})
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker), getBalance(t, store, ref))
}

// Concurrent create-if-absent against the same ID must converge onto a
// single document without duplicate-creation errors.
func TestMutate_CreateIfAbsentRace(t *testing.T) {
	store := docstore.NewMemory()
	g := New(store, logger.Nop(),
		WithMaxAttempts(50),
		WithBaseDelay(100*time.Microsecond),
		WithMaxDelay(time.Millisecond))
	ref := docstore.Ref{Collection: "mappings", ID: "deadbeef"}

	const writers = 6
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Mutate(context.Background(), ref, func(cur docstore.Doc) ([]byte, bool, error) {
				if cur.Exists {
					return nil, false, nil
				}
				return []byte(`{"name":"rewe markt"}`), true, nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	require.True(t, doc.Exists)
	assert.Equal(t, int64(1), doc.Version, "losing creators must back off, not overwrite")
}

type conflictingStore struct {
	docstore.Store
	failures int
	calls    int
}

func (s *conflictingStore) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	s.calls++
	if s.calls <= s.failures {
		return docstore.ErrWriteConflict
	}
	return s.Store.RunTransaction(ctx, fn)
}

func TestMutate_RetriesThenSucceeds(t *testing.T) {
	mem := docstore.NewMemory()
	store := &conflictingStore{Store: mem, failures: 3}
	g := newTestGuard(t, store)
	ref := docstore.Ref{Collection: "credits", ID: "u1"}
	putAccount(t, mem, ref, 10)

	require.NoError(t, g.Mutate(context.Background(), ref, deduct(1)))
	assert.Equal(t, 4, store.calls)
	assert.Equal(t, int64(9), getBalance(t, mem, ref))
}

func TestMutate_ExhaustsRetries(t *testing.T) {
	store := &conflictingStore{Store: docstore.NewMemory(), failures: 1000}
	g := New(store, logger.Nop(), WithMaxAttempts(3), WithBaseDelay(time.Millisecond), WithMaxDelay(time.Millisecond))

	err := g.Mutate(context.Background(), docstore.Ref{Collection: "credits", ID: "u1"}, deduct(1))
	require.ErrorIs(t, err, ErrTransactionFailed)
	require.ErrorIs(t, err, docstore.ErrWriteConflict)
	assert.Equal(t, 3, store.calls)
}

func TestMutate_ContextCancelled(t *testing.T) {
	store := &conflictingStore{Store: docstore.NewMemory(), failures: 1000}
	g := New(store, logger.Nop(), WithMaxAttempts(100), WithBaseDelay(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := g.Mutate(ctx, docstore.Ref{Collection: "credits", ID: "u1"}, deduct(1))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPreconditionNotMet))
}

func TestRun_MultiDocument(t *testing.T) {
	store := docstore.NewMemory()
	g := newTestGuard(t, store)
	from := docstore.Ref{Collection: "credits", ID: "u1"}
	to := docstore.Ref{Collection: "credits", ID: "u2"}
	putAccount(t, store, from, 10)
	putAccount(t, store, to, 0)

	err := g.Run(context.Background(), func(tx docstore.Tx) error {
		src, err := tx.Get(from)
		if err != nil {
			return err
		}
		dst, err := tx.Get(to)
		if err != nil {
			return err
		}
		var a, b account
		if err := src.Decode(&a); err != nil {
			return err
		}
		if err := dst.Decode(&b); err != nil {
			return err
		}
		if a.Balance < 4 {
			return ErrPreconditionNotMet
		}
		a.Balance -= 4
		b.Balance += 4
		da, _ := json.Marshal(a)
		db, _ := json.Marshal(b)
		tx.Set(from, da)
		tx.Set(to, db)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), getBalance(t, store, from))
	assert.Equal(t, int64(4), getBalance(t, store, to))
}
