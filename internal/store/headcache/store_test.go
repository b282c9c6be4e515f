package headcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	store, err := NewStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "btcusdt", " 1m ", "trades", 1609459200000))

	entry, found, err := store.Get(ctx, "BTCUSDT", "1m", "TRADES")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "BTCUSDT", entry.Symbol)
	assert.Equal(t, "1m", entry.Timeframe)
	assert.Equal(t, "TRADES", entry.SubKey)
	assert.Equal(t, int64(1609459200000), entry.Earliest)
	assert.Greater(t, entry.FetchedAt, int64(0))
}

func TestGetMissesUnknownKey(t *testing.T) {
	store, err := NewStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.Get(context.Background(), "BTCUSDT", "1m", "TRADES")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpiredEntryIsIgnored(t *testing.T) {
	store, err := NewStore(t.TempDir(), time.Millisecond)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "BTCUSDT", "1m", "TRADES", 42))
	time.Sleep(20 * time.Millisecond)

	_, found, err := store.Get(ctx, "BTCUSDT", "1m", "TRADES")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutUpserts(t *testing.T) {
	store, err := NewStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "BTCUSDT", "1m", "TRADES", 100))
	require.NoError(t, store.Put(ctx, "BTCUSDT", "1m", "TRADES", 200))

	entry, found, err := store.Get(ctx, "BTCUSDT", "1m", "TRADES")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(200), entry.Earliest)
}

func TestSubKeysAreIndependent(t *testing.T) {
	store, err := NewStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "BTCUSDT", "1m", "TRADES", 100))
	require.NoError(t, store.Put(ctx, "BTCUSDT", "1m", "BID", 300))

	entry, found, err := store.Get(ctx, "BTCUSDT", "1m", "BID")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(300), entry.Earliest)
}

func TestEmptySymbolRejected(t *testing.T) {
	store, err := NewStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.Put(context.Background(), "", "1m", "TRADES", 1))
}
