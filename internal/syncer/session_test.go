package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/localstate"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

type sessionHarness struct {
	store   *docstore.Memory
	session *Session
	fetcher *fakeFetcher
	local   *localstate.DB
	cancel  context.CancelFunc
}

func newSessionHarness(t *testing.T, self string) *sessionHarness {
	t.Helper()

	store := docstore.NewMemory()
	local, err := localstate.Open(context.Background(), "", logger.Nop())
	require.NoError(t, err)

	reader := NewReader(NewStoreSource(store), logger.Nop(), WithResubscribeDelay(time.Millisecond, 5*time.Millisecond))
	cache := NewCache(0)
	fetcher := newFakeFetcher()
	reactor := NewReactor(self, reader, cache, fetcher, logger.Nop())
	session := NewSession(self, reader, reactor, cache, local, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go session.Run(ctx)

	t.Cleanup(func() {
		cancel()
		session.Close()
		local.Close()
	})
	return &sessionHarness{store: store, session: session, fetcher: fetcher, local: local, cancel: cancel}
}

func TestSession_AddGroupFillsCache(t *testing.T) {
	h := newSessionHarness(t, "alice")
	h.fetcher.setRecords("g1", []models.Record{record("t1")})
	putGroup(t, h.store, models.SharedGroup{ID: "g1", OwnerID: "alice", Members: []string{"alice"}})

	require.NoError(t, h.session.AddGroup(context.Background(), "g1"))
	require.Equal(t, EventRefreshed, recvEvent(t, h.session.Events()).Type)

	records, err := h.session.Records(context.Background(), "g1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSession_RecordsFallBackToLocalState(t *testing.T) {
	h := newSessionHarness(t, "alice")
	ctx := context.Background()

	// nothing cached; the last merged copy still serves reads
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.local.UpsertRecords(ctx, "g1", []models.Record{
		{ID: "t1", Kind: "transaction", Payload: []byte(`{}`), UpdatedAt: at, Version: 1},
	}))

	records, err := h.session.Records(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0].ID)
}

func TestSession_RemoveGroupDropsEverything(t *testing.T) {
	h := newSessionHarness(t, "alice")
	ctx := context.Background()
	h.fetcher.setRecords("g1", []models.Record{record("t1")})
	putGroup(t, h.store, models.SharedGroup{ID: "g1", OwnerID: "alice", Members: []string{"alice"}})

	require.NoError(t, h.session.AddGroup(ctx, "g1"))
	require.Equal(t, EventRefreshed, recvEvent(t, h.session.Events()).Type)

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.local.UpsertRecords(ctx, "g1", []models.Record{
		{ID: "t1", Kind: "transaction", Payload: []byte(`{}`), UpdatedAt: at, Version: 1},
	}))

	require.NoError(t, h.session.RemoveGroup(ctx, "g1"))

	assert.Empty(t, h.session.Tracked())
	records, err := h.session.Records(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSession_TrackingCap(t *testing.T) {
	h := newSessionHarness(t, "alice")
	ctx := context.Background()

	for i := 0; i < MaxTrackedGroups; i++ {
		require.NoError(t, h.session.AddGroup(ctx, string(rune('a'+i))))
	}
	err := h.session.AddGroup(ctx, "one-too-many")
	require.ErrorIs(t, err, ErrTooManySubscriptions)
}

func TestReconcileJob_RefreshesTrackedGroups(t *testing.T) {
	h := newSessionHarness(t, "alice")
	ctx := context.Background()
	h.fetcher.setRecords("g1", []models.Record{record("t1")})
	putGroup(t, h.store, models.SharedGroup{ID: "g1", OwnerID: "alice", Members: []string{"alice"}})

	require.NoError(t, h.session.AddGroup(ctx, "g1"))
	require.Equal(t, EventRefreshed, recvEvent(t, h.session.Events()).Type)
	base := h.fetcher.fetchCount("g1")

	job := NewReconcileJob(h.session)
	job.Start(ctx, 10*time.Millisecond)
	defer job.Stop()

	require.Eventually(t, func() bool {
		return h.fetcher.fetchCount("g1") > base
	}, 2*time.Second, 5*time.Millisecond, "the reconcile job must refetch without any stamp")
}

func TestReconcileJob_StopIsIdempotent(t *testing.T) {
	h := newSessionHarness(t, "alice")
	job := NewReconcileJob(h.session)

	job.Stop() // never started
	job.Start(context.Background(), 50*time.Millisecond)
	job.Stop()
	job.Stop()
}
