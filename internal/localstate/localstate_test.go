package localstate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), "", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWatermark_Missing(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.Watermark(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatermark_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wm := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	require.NoError(t, db.SetWatermark(ctx, models.SyncState{
		GroupID:   "g1",
		Watermark: wm,
		UpdatedAt: wm,
	}))

	st, ok, err := db.Watermark(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "g1", st.GroupID)
	assert.True(t, st.Watermark.Equal(wm))
}

func TestSetWatermark_Overwrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, db.SetWatermark(ctx, models.SyncState{GroupID: "g1", Watermark: first, UpdatedAt: first}))
	require.NoError(t, db.SetWatermark(ctx, models.SyncState{GroupID: "g1", Watermark: second, UpdatedAt: second}))

	st, ok, err := db.Watermark(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, st.Watermark.Equal(second))
}

func TestWatermark_PerGroup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wm := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.SetWatermark(ctx, models.SyncState{GroupID: "g1", Watermark: wm, UpdatedAt: wm}))

	_, ok, err := db.Watermark(ctx, "g2")
	require.NoError(t, err)
	assert.False(t, ok, "watermarks must be independent per group")
}

func TestUpsertRecords_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	in := []models.Record{
		{ID: "t2", Kind: "transaction", Payload: []byte(`{"amount":2}`), UpdatedAt: base.Add(time.Minute), Version: 1},
		{ID: "t1", Kind: "transaction", Payload: []byte(`{"amount":1}`), UpdatedAt: base, Version: 3},
	}
	require.NoError(t, db.UpsertRecords(ctx, "g1", in))

	out, err := db.RecordsFor(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	// ordered by update time
	assert.Equal(t, "t1", out[0].ID)
	assert.Equal(t, "t2", out[1].ID)
	assert.Equal(t, "g1", out[0].GroupID)
	assert.JSONEq(t, `{"amount":1}`, string(out[0].Payload))
	assert.Equal(t, int64(3), out[0].Version)
}

func TestUpsertRecords_MergesNewerVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertRecords(ctx, "g1", []models.Record{
		{ID: "t1", Kind: "transaction", Payload: []byte(`{"amount":1}`), UpdatedAt: base, Version: 1},
	}))
	require.NoError(t, db.UpsertRecords(ctx, "g1", []models.Record{
		{ID: "t1", Kind: "transaction", Payload: []byte(`{"amount":5}`), UpdatedAt: base.Add(time.Minute), Version: 2, Deleted: true},
	}))

	out, err := db.RecordsFor(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.JSONEq(t, `{"amount":5}`, string(out[0].Payload))
	assert.Equal(t, int64(2), out[0].Version)
	assert.True(t, out[0].Deleted)
}

func TestUpsertRecords_Empty(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertRecords(context.Background(), "g1", nil))
}

func TestDeleteGroup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertRecords(ctx, "g1", []models.Record{
		{ID: "t1", Kind: "transaction", Payload: []byte(`{}`), UpdatedAt: base, Version: 1},
	}))
	require.NoError(t, db.UpsertRecords(ctx, "g2", []models.Record{
		{ID: "t1", Kind: "transaction", Payload: []byte(`{}`), UpdatedAt: base, Version: 1},
	}))
	require.NoError(t, db.SetWatermark(ctx, models.SyncState{GroupID: "g1", Watermark: base, UpdatedAt: base}))

	require.NoError(t, db.DeleteGroup(ctx, "g1"))

	out, err := db.RecordsFor(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, out)
	_, ok, err := db.Watermark(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)

	// other groups untouched
	out, err = db.RecordsFor(ctx, "g2")
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestOpen_CreatesFileAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "agent.db")

	db, err := Open(ctx, path, logger.Nop())
	require.NoError(t, err)

	wm := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.SetWatermark(ctx, models.SyncState{GroupID: "g1", Watermark: wm, UpdatedAt: wm}))
	require.NoError(t, db.Close())

	reopened, err := Open(ctx, path, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	st, ok, err := reopened.Watermark(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok, "watermarks must survive a restart")
	assert.True(t, st.Watermark.Equal(wm))
}
