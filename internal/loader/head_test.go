package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tickvault/internal/store/headcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHeadSource struct {
	answers map[string]int64 // whatToShow -> earliest; absent means null answer
	calls   int
	err     error
}

func (f *fakeHeadSource) HeadTimestamp(_ context.Context, _, _, whatToShow string) (int64, bool, error) {
	f.calls++
	if f.err != nil {
		return 0, false, f.err
	}
	earliest, ok := f.answers[whatToShow]
	return earliest, ok, nil
}

type fakeHeadCache struct {
	entries map[string]headcache.Entry
}

func newFakeHeadCache() *fakeHeadCache {
	return &fakeHeadCache{entries: make(map[string]headcache.Entry)}
}

func (f *fakeHeadCache) key(symbol, timeframe, subKey string) string {
	return fmt.Sprintf("%s|%s|%s", symbol, timeframe, subKey)
}

func (f *fakeHeadCache) Get(_ context.Context, symbol, timeframe, subKey string) (headcache.Entry, bool, error) {
	e, ok := f.entries[f.key(symbol, timeframe, subKey)]
	return e, ok, nil
}

func (f *fakeHeadCache) Put(_ context.Context, symbol, timeframe, subKey string, earliest int64) error {
	f.entries[f.key(symbol, timeframe, subKey)] = headcache.Entry{
		Symbol: symbol, Timeframe: timeframe, SubKey: subKey, Earliest: earliest,
	}
	return nil
}

func defaultHeadPolicy() HeadPolicy {
	return HeadPolicy{AdjustThreshold: 7 * 24 * time.Hour}
}

func TestEarliestFallbackOrder(t *testing.T) {
	source := &fakeHeadSource{answers: map[string]int64{"BID": 5 * minute}}
	cache := newFakeHeadCache()
	v := NewHeadValidator(source, cache, nil)

	earliest, found, err := v.Earliest(context.Background(), "EURUSD", "1h", "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5*minute, earliest)
	// TRADES answered null, BID hit; later variants never queried.
	assert.Equal(t, 2, source.calls)

	// The successful variant is cached; a second lookup stays local.
	_, _, err = v.Earliest(context.Background(), "EURUSD", "1h", "")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestEarliestAllVariantsNull(t *testing.T) {
	source := &fakeHeadSource{answers: map[string]int64{}}
	v := NewHeadValidator(source, newFakeHeadCache(), nil)

	_, found, err := v.Earliest(context.Background(), "XYZ", "1m", "")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 4, source.calls)
}

func TestValidateAndAdjustWithinThreshold(t *testing.T) {
	day := int64(24 * 60 * 60 * 1000)
	source := &fakeHeadSource{answers: map[string]int64{"TRADES": 10 * day}}
	v := NewHeadValidator(source, newFakeHeadCache(), defaultHeadPolicy)

	// Start only 3 days before the head: passes through untouched.
	start, adjusted, warning, err := v.ValidateAndAdjust(context.Background(), "BTCUSDT", "1h", 7*day, 30*day)
	require.NoError(t, err)
	assert.False(t, adjusted)
	assert.Empty(t, warning)
	assert.Equal(t, 7*day, start)
}

func TestValidateAndAdjustSoftAdjusts(t *testing.T) {
	day := int64(24 * 60 * 60 * 1000)
	source := &fakeHeadSource{answers: map[string]int64{"TRADES": 20 * day}}
	v := NewHeadValidator(source, newFakeHeadCache(), defaultHeadPolicy)

	start, adjusted, warning, err := v.ValidateAndAdjust(context.Background(), "BTCUSDT", "1h", 0, 30*day)
	require.NoError(t, err)
	assert.True(t, adjusted)
	assert.NotEmpty(t, warning)
	assert.Equal(t, 20*day, start)
}

func TestValidateAndAdjustFatalWhenRangeEmpties(t *testing.T) {
	day := int64(24 * 60 * 60 * 1000)
	source := &fakeHeadSource{answers: map[string]int64{"TRADES": 50 * day}}
	v := NewHeadValidator(source, newFakeHeadCache(), defaultHeadPolicy)

	_, _, _, err := v.ValidateAndAdjust(context.Background(), "BTCUSDT", "1h", 0, 30*day)
	require.Error(t, err)
	assert.Equal(t, KindFatal, Classify(err))
}

func TestValidateAndAdjustLookupFailurePassesThrough(t *testing.T) {
	source := &fakeHeadSource{err: errors.New("provider down")}
	v := NewHeadValidator(source, newFakeHeadCache(), defaultHeadPolicy)

	start, adjusted, _, err := v.ValidateAndAdjust(context.Background(), "BTCUSDT", "1h", 0, 10*minute)
	require.NoError(t, err)
	assert.False(t, adjusted)
	assert.Equal(t, int64(0), start)
}

func TestValidateAndAdjustUnknownHeadPassesThrough(t *testing.T) {
	source := &fakeHeadSource{answers: map[string]int64{}}
	v := NewHeadValidator(source, newFakeHeadCache(), defaultHeadPolicy)

	start, adjusted, _, err := v.ValidateAndAdjust(context.Background(), "NEWCOIN", "1m", 0, 10*minute)
	require.NoError(t, err)
	assert.False(t, adjusted)
	assert.Equal(t, int64(0), start)
}
