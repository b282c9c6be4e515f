package estimate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeBucket(t *testing.T) {
	assert.Equal(t, "s", SizeBucket(500))
	assert.Equal(t, "m", SizeBucket(1_000))
	assert.Equal(t, "l", SizeBucket(50_000))
	assert.Equal(t, "xl", SizeBucket(250_000))
}

func TestEstimateColdStart(t *testing.T) {
	e := NewEngine(8)
	_, ok := e.Estimate(Features{SymbolClass: "major", Timeframe: "1m", Mode: "backfill", SizeBucket: "m"})
	assert.False(t, ok)
}

func TestEstimateWeighsRecentSamplesHeavier(t *testing.T) {
	e := NewEngine(8)
	f := Features{SymbolClass: "major", Timeframe: "1m", Mode: "backfill", SizeBucket: "m"}

	e.Record(f, 10*time.Second)
	e.Record(f, 30*time.Second)

	est, ok := e.Estimate(f)
	require.True(t, ok)
	// Weighted toward the newer 30s sample: (1*10 + 2*30) / 3.
	assert.InDelta(t, float64(23333*time.Millisecond), float64(est), float64(100*time.Millisecond))
}

func TestEstimateBucketsAreIndependent(t *testing.T) {
	e := NewEngine(8)
	small := Features{SymbolClass: "major", Timeframe: "1m", Mode: "backfill", SizeBucket: "s"}
	large := Features{SymbolClass: "major", Timeframe: "1m", Mode: "backfill", SizeBucket: "l"}

	e.Record(small, time.Second)
	_, ok := e.Estimate(large)
	assert.False(t, ok)
	assert.Equal(t, 1, e.SampleCount(small))
	assert.Equal(t, 0, e.SampleCount(large))
}

func TestRingEvictsOldest(t *testing.T) {
	e := NewEngine(2)
	f := Features{SymbolClass: "alt", Timeframe: "1h", Mode: "tail", SizeBucket: "s"}

	e.Record(f, time.Hour) // evicted
	e.Record(f, 10*time.Second)
	e.Record(f, 10*time.Second)

	est, ok := e.Estimate(f)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, est)
	assert.Equal(t, 2, e.SampleCount(f))
}

func TestRemainingUsesLearnedTotal(t *testing.T) {
	e := NewEngine(8)
	f := Features{SymbolClass: "major", Timeframe: "1m", Mode: "backfill", SizeBucket: "m"}
	e.Record(f, 100*time.Second)

	r := NewRemainingEstimator(e, f)
	left, ok := r.Remaining(10*time.Second, 0.25)
	require.True(t, ok)
	assert.Equal(t, 75*time.Second, left)
}

func TestRemainingColdStartPaceFallback(t *testing.T) {
	e := NewEngine(8)
	f := Features{SymbolClass: "other", Timeframe: "1d", Mode: "full", SizeBucket: "s"}
	r := NewRemainingEstimator(e, f)

	// Early on with no history there is nothing to say.
	_, ok := r.Remaining(10*time.Second, 0.2)
	assert.False(t, ok)

	// Past the halfway mark the observed pace extrapolates.
	left, ok := r.Remaining(60*time.Second, 0.6)
	require.True(t, ok)
	assert.Equal(t, 40*time.Second, left)
}

func TestCatalogClassify(t *testing.T) {
	c := EmptyCatalog()
	assert.Equal(t, DefaultClass, c.Classify("BTCUSDT"))
}
