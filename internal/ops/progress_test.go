package ops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressMonotonic(t *testing.T) {
	m := NewProgressManager("op-1", nil)
	m.Update(ProgressUpdate{Percentage: 40, Message: "forty"})
	m.Update(ProgressUpdate{Percentage: 30, Message: "thirty"})

	snap := m.Snapshot()
	// Percentage never regresses; other fields still merge.
	assert.Equal(t, 40.0, snap.Percentage)
	assert.Equal(t, "thirty", snap.Message)
}

func TestProgressClamped(t *testing.T) {
	m := NewProgressManager("op-1", nil)
	m.Update(ProgressUpdate{Percentage: 150})
	assert.Equal(t, 100.0, m.Snapshot().Percentage)

	m = NewProgressManager("op-2", nil)
	m.Update(ProgressUpdate{Percentage: -5})
	assert.Equal(t, 0.0, m.Snapshot().Percentage)
}

func TestProgressSinkReceivesIsolatedCopies(t *testing.T) {
	m := NewProgressManager("op-1", nil)
	var seen []ProgressState
	m.AddSink(func(s ProgressState) { seen = append(seen, s) })

	m.Update(ProgressUpdate{Percentage: 10, Extra: map[string]string{"k": "a"}})
	m.Update(ProgressUpdate{Percentage: 20, Extra: map[string]string{"k": "b"}})

	require.Len(t, seen, 2)
	assert.Equal(t, 10.0, seen[0].Percentage)
	assert.Equal(t, "a", seen[0].Extra["k"])
	// Later updates must not mutate earlier snapshots.
	assert.Equal(t, "b", seen[1].Extra["k"])
	assert.Equal(t, "a", seen[0].Extra["k"])
}

func TestProgressContextMerge(t *testing.T) {
	m := NewProgressManager("op-1", DataProgressRenderer{})
	m.Update(ProgressUpdate{Percentage: 10, Context: &ProgressContext{Symbol: "BTCUSDT", Timeframe: "1m", TotalSegments: 4}})
	m.Update(ProgressUpdate{Percentage: 30, Context: &ProgressContext{Symbol: "BTCUSDT", Timeframe: "1m", TotalSegments: 4, CurrentSegment: 1, BarsFetched: 500}})

	snap := m.Snapshot()
	assert.Equal(t, "BTCUSDT", snap.Context.Symbol)
	assert.Equal(t, 1, snap.Context.CurrentSegment)
	assert.Equal(t, int64(500), snap.Context.BarsFetched)
}

type fixedEstimator struct{ left time.Duration }

func (f fixedEstimator) Remaining(time.Duration, float64) (time.Duration, bool) {
	return f.left, true
}

func TestProgressEstimateRendered(t *testing.T) {
	m := NewProgressManager("op-1", DataProgressRenderer{})
	m.SetEstimator(fixedEstimator{left: 90 * time.Second})
	m.Update(ProgressUpdate{Percentage: 50})

	snap := m.Snapshot()
	assert.Equal(t, 90*time.Second, snap.EstimatedLeft)
	assert.NotEmpty(t, snap.Extra["eta"])
}

func TestCancelTokenWriteOnce(t *testing.T) {
	token := NewCancelToken()
	assert.False(t, token.Cancelled())

	token.RequestCancel("first")
	token.RequestCancel("second")

	assert.True(t, token.Cancelled())
	assert.Equal(t, "first", token.Reason())
}
