package config

import "strings"

// Config is the top-level configuration carrier.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Storage   StorageConfig   `yaml:"storage"`
	Provider  ProviderConfig  `yaml:"provider"`
	Loader    LoaderConfig    `yaml:"loader"`
	Estimate  EstimateConfig  `yaml:"estimate"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Training  TrainingConfig  `yaml:"training"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`
	LogPath  string `yaml:"log_path"`
}

type StorageConfig struct {
	// Root directory for the per-(symbol,timeframe) OHLCV databases.
	Root string `yaml:"root"`
	// OpsDB is the archive of finished operations.
	OpsDB string `yaml:"ops_db"`
	// HeadCacheDir holds the cache of earliest-available timestamps.
	HeadCacheDir string `yaml:"headcache_dir"`
	HeadTTLHours int    `yaml:"head_ttl_hours"`
}

type ProviderConfig struct {
	BaseURL                string `yaml:"base_url"`
	TimeoutSeconds         int    `yaml:"timeout_seconds"`
	MaxConnections         int    `yaml:"max_connections"`
	BreakerThreshold       int    `yaml:"breaker_threshold"`
	BreakerCooldownSeconds int    `yaml:"breaker_cooldown_seconds"`
}

// LoaderConfig is hot-reloadable: changes take effect on the next segment of
// running operations, not only on new ones.
type LoaderConfig struct {
	MaxSpanBars             int64 `yaml:"max_span_bars"`
	MinIntervalMillis       int   `yaml:"min_interval_ms"`
	GapCoalesceBars         int   `yaml:"gap_coalesce_bars"`
	RetryMax                int   `yaml:"retry_max"`
	BackoffBaseSeconds      int   `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds       int   `yaml:"backoff_max_seconds"`
	RateLimitBackoffSeconds int   `yaml:"rate_limit_backoff_seconds"`
	RateLimitMaxConsecutive int   `yaml:"rate_limit_max_consecutive"`
	HeadAdjustThresholdDays int   `yaml:"head_adjust_threshold_days"`
}

type EstimateConfig struct {
	CatalogPath string `yaml:"catalog_path"`
	Window      int    `yaml:"window"`
}

type SchedulerConfig struct {
	Enabled          bool              `yaml:"enabled"`
	IntervalMinutes  int               `yaml:"interval_minutes"`
	TailLookbackBars int64             `yaml:"tail_lookback_bars"`
	Targets          []SchedulerTarget `yaml:"targets"`
}

type SchedulerTarget struct {
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`
}

type TrainingConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
}

// keySet tracks which field paths were explicitly present in the file, so
// applyDefaults never overwrites a deliberate zero value.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
