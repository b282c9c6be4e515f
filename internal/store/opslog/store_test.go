package opslog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"tickvault/internal/ops"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "operations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func terminalOp(id string, endedAt time.Time) ops.Operation {
	return ops.Operation{
		ID:     id,
		Type:   ops.TypeDataLoad,
		Status: ops.StatusCompleted,
		Metadata: ops.Metadata{
			Symbol:    "BTCUSDT",
			Timeframe: "1m",
			Mode:      "backfill",
		},
		Result:    json.RawMessage(`{"rows_merged":120}`),
		CreatedAt: endedAt.Add(-time.Minute),
		StartedAt: endedAt.Add(-time.Minute),
		EndedAt:   endedAt,
	}
}

func TestArchiveAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	op := terminalOp("op-1", time.Now())
	op.Progress.Percentage = 100
	require.NoError(t, store.Archive(ctx, op))

	got, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "op-1", got[0].ID)
	assert.Equal(t, ops.StatusCompleted, got[0].Status)
	assert.Equal(t, "BTCUSDT", got[0].Metadata.Symbol)
	assert.JSONEq(t, `{"rows_merged":120}`, string(got[0].Result))
	assert.Equal(t, 100.0, got[0].Progress.Percentage)
}

func TestArchiveRefusesNonTerminal(t *testing.T) {
	store := newTestStore(t)

	op := terminalOp("op-1", time.Now())
	op.Status = ops.StatusRunning
	err := store.Archive(context.Background(), op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-terminal")
}

func TestArchiveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	op := terminalOp("op-1", time.Now())
	require.NoError(t, store.Archive(ctx, op))
	op.Error = "late detail"
	require.NoError(t, store.Archive(ctx, op))

	got, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "late detail", got[0].Error)
}

func TestRecentFiltersByTypeAndOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	older := terminalOp("op-old", now.Add(-time.Hour))
	newer := terminalOp("op-new", now)
	train := terminalOp("op-train", now.Add(-time.Minute))
	train.Type = ops.TypeTraining
	require.NoError(t, store.Archive(ctx, older))
	require.NoError(t, store.Archive(ctx, newer))
	require.NoError(t, store.Archive(ctx, train))

	loads, err := store.Recent(ctx, ops.TypeDataLoad, 10)
	require.NoError(t, err)
	require.Len(t, loads, 2)
	assert.Equal(t, "op-new", loads[0].ID)
	assert.Equal(t, "op-old", loads[1].ID)

	trains, err := store.Recent(ctx, ops.TypeTraining, 10)
	require.NoError(t, err)
	require.Len(t, trains, 1)
	assert.Equal(t, "op-train", trains[0].ID)
}

func TestPruneDeletesOldRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Archive(ctx, terminalOp("op-old", now.Add(-48*time.Hour))))
	require.NoError(t, store.Archive(ctx, terminalOp("op-new", now)))

	removed, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "op-new", got[0].ID)
}
