package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  env: prod
`))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":8910", cfg.App.HTTPAddr)
	assert.Equal(t, "data/ohlcv", cfg.Storage.Root)
	assert.Equal(t, int64(5000), cfg.Loader.MaxSpanBars)
	assert.Equal(t, 16, cfg.Loader.GapCoalesceBars)
	assert.Equal(t, 7, cfg.Loader.HeadAdjustThresholdDays)
	assert.Equal(t, 0.05, cfg.Training.LearningRate)
}

func TestLoadPreservesExplicitZero(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
loader:
  gap_coalesce_bars: 0
`))
	require.NoError(t, err)
	// An explicit zero disables coalescing; the default must not override it.
	assert.Equal(t, 0, cfg.Loader.GapCoalesceBars)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(writeConfig(t, `
training:
  learning_rate: 2.0
`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `
loader:
  backoff_base_seconds: 30
  backoff_max_seconds: 5
`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `
scheduler:
  enabled: true
  targets: []
`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `
scheduler:
  enabled: true
  targets:
    - symbol: BTCUSDT
      timeframe: 13m
`))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	_, err = Load("")
	assert.Error(t, err)
}

func TestWatcherPolicies(t *testing.T) {
	w, err := NewWatcher(writeConfig(t, `
loader:
  max_span_bars: 100
  min_interval_ms: 50
`))
	require.NoError(t, err)

	pol := w.LoaderPolicy()
	assert.Equal(t, int64(100), pol.MaxSpanBars)
	assert.Equal(t, int64(50), pol.MinInterval.Milliseconds())

	head := w.HeadPolicy()
	assert.Equal(t, int64(7*24), int64(head.AdjustThreshold.Hours()))
}
