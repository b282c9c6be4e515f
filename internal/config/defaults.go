package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":8910"
	defaultAppLogPath  = "data/logs/tickvault.log"

	defaultStorageRoot  = "data/ohlcv"
	defaultOpsDB        = "data/db/operations.db"
	defaultHeadCacheDir = "data/db/headcache"
	defaultHeadTTLHours = 24

	defaultProviderBaseURL  = "http://localhost:8900"
	defaultProviderTimeout  = 30
	defaultProviderMaxConns = 8
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30

	defaultMaxSpanBars      = 5000
	defaultMinIntervalMs    = 300
	defaultGapCoalesceBars  = 16
	defaultRetryMax         = 4
	defaultBackoffBase      = 2
	defaultBackoffMax       = 60
	defaultRateLimitBackoff = 15
	defaultRateLimitMaxRuns = 5
	defaultHeadAdjustDays   = 7

	defaultEstimateCatalog = "configs/symbols.yaml"
	defaultEstimateWindow  = 20

	defaultSchedulerInterval = 15
	defaultSchedulerLookback = 2000

	defaultTrainingLR = 0.05
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Provider.applyDefaults(keys)
	c.Loader.applyDefaults(keys)
	c.Estimate.applyDefaults(keys)
	c.Scheduler.applyDefaults(keys)
	c.Training.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("storage.root", &s.Root, defaultStorageRoot),
		stringFieldDefault("storage.ops_db", &s.OpsDB, defaultOpsDB),
		stringFieldDefault("storage.headcache_dir", &s.HeadCacheDir, defaultHeadCacheDir),
		intFieldDefault("storage.head_ttl_hours", &s.HeadTTLHours, defaultHeadTTLHours),
	)
}

func (p *ProviderConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("provider.base_url", &p.BaseURL, defaultProviderBaseURL),
		intFieldDefault("provider.timeout_seconds", &p.TimeoutSeconds, defaultProviderTimeout),
		intFieldDefault("provider.max_connections", &p.MaxConnections, defaultProviderMaxConns),
		intFieldDefault("provider.breaker_threshold", &p.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("provider.breaker_cooldown_seconds", &p.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (l *LoaderConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		int64FieldDefault("loader.max_span_bars", &l.MaxSpanBars, defaultMaxSpanBars),
		intFieldDefault("loader.min_interval_ms", &l.MinIntervalMillis, defaultMinIntervalMs),
		intFieldDefault("loader.gap_coalesce_bars", &l.GapCoalesceBars, defaultGapCoalesceBars),
		intFieldDefault("loader.retry_max", &l.RetryMax, defaultRetryMax),
		intFieldDefault("loader.backoff_base_seconds", &l.BackoffBaseSeconds, defaultBackoffBase),
		intFieldDefault("loader.backoff_max_seconds", &l.BackoffMaxSeconds, defaultBackoffMax),
		intFieldDefault("loader.rate_limit_backoff_seconds", &l.RateLimitBackoffSeconds, defaultRateLimitBackoff),
		intFieldDefault("loader.rate_limit_max_consecutive", &l.RateLimitMaxConsecutive, defaultRateLimitMaxRuns),
		intFieldDefault("loader.head_adjust_threshold_days", &l.HeadAdjustThresholdDays, defaultHeadAdjustDays),
	)
}

func (e *EstimateConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("estimate.catalog_path", &e.CatalogPath, defaultEstimateCatalog),
		intFieldDefault("estimate.window", &e.Window, defaultEstimateWindow),
	)
}

func (s *SchedulerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("scheduler.interval_minutes", &s.IntervalMinutes, defaultSchedulerInterval),
		int64FieldDefault("scheduler.tail_lookback_bars", &s.TailLookbackBars, defaultSchedulerLookback),
	)
}

func (t *TrainingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("training.learning_rate", &t.LearningRate, defaultTrainingLR),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func int64FieldDefault(key string, target *int64, def int64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
