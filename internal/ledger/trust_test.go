package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/guard"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

func newTestTrust(t *testing.T) *TrustService {
	t.Helper()
	store := docstore.NewMemory()
	return NewTrustService(store, newTestGuard(store), logger.Nop())
}

func TestTrust_Lifecycle(t *testing.T) {
	svc := newTestTrust(t)
	ctx := context.Background()

	state, err := svc.State(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TrustRevoked, state, "absent record reads as revoked")

	require.NoError(t, svc.Request(ctx, "alice", "bob"))
	state, err = svc.State(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TrustPending, state)

	require.NoError(t, svc.Transition(ctx, "alice", "bob", models.TrustGranted))
	state, err = svc.State(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TrustGranted, state)

	require.NoError(t, svc.Transition(ctx, "alice", "bob", models.TrustRevoked))
	state, err = svc.State(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TrustRevoked, state)

	// a revoked record can be re-opened
	require.NoError(t, svc.Request(ctx, "alice", "bob"))
	state, err = svc.State(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TrustPending, state)
}

func TestTrust_IllegalEdges(t *testing.T) {
	svc := newTestTrust(t)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, "alice", "bob"))
	require.NoError(t, svc.Transition(ctx, "alice", "bob", models.TrustGranted))

	// granted cannot fall back to pending
	err := svc.Transition(ctx, "alice", "bob", models.TrustPending)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, err, guard.ErrPreconditionNotMet)

	// a pending request onto a granted record is rejected too
	err = svc.Request(ctx, "alice", "bob")
	require.ErrorIs(t, err, ErrInvalidTransition)

	state, err := svc.State(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TrustGranted, state)
}

func TestTrust_TransitionMissingRecord(t *testing.T) {
	svc := newTestTrust(t)
	err := svc.Transition(context.Background(), "alice", "bob", models.TrustGranted)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, guard.ErrPreconditionNotMet)
}

func TestTrust_SameStateIsNoop(t *testing.T) {
	svc := newTestTrust(t)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, "alice", "bob"))
	require.NoError(t, svc.Transition(ctx, "alice", "bob", models.TrustGranted))
	require.NoError(t, svc.Transition(ctx, "alice", "bob", models.TrustGranted))
}

func TestTrust_DirectionsAreIndependent(t *testing.T) {
	svc := newTestTrust(t)
	ctx := context.Background()

	require.NoError(t, svc.Request(ctx, "alice", "bob"))
	require.NoError(t, svc.Transition(ctx, "alice", "bob", models.TrustGranted))

	state, err := svc.State(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TrustRevoked, state, "the reverse direction has its own record")
}

// Two devices answer the same pending request at the same moment, one
// granting and one revoking. The transactions serialize on the record:
// both edges are legal from pending, so both succeed in some order and
// the record ends in the later writer's state, never a torn mix.
func TestTrust_ConcurrentTransitionsSerialize(t *testing.T) {
	svc := newTestTrust(t)
	ctx := context.Background()
	require.NoError(t, svc.Request(ctx, "alice", "bob"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	states := []models.TrustState{models.TrustGranted, models.TrustRevoked}
	for i, next := range states {
		wg.Add(1)
		go func(i int, next models.TrustState) {
			defer wg.Done()
			errs[i] = svc.Transition(ctx, "alice", "bob", next)
		}(i, next)
	}
	wg.Wait()

	// grant→revoke is legal, revoke→grant is not: depending on the order
	// either both succeed or the second (grant after revoke) is rejected.
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrInvalidTransition)
		}
	}

	state, err := svc.State(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Contains(t, []models.TrustState{models.TrustGranted, models.TrustRevoked}, state)
}
