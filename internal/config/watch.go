package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"tickvault/internal/loader"
	"tickvault/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher keeps a live snapshot of the configuration and republishes it when
// the file changes on disk. Only a safe subset of knobs is hot-reloadable;
// structural settings (addresses, storage paths) require a restart and keep
// their boot-time values.
type Watcher struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot *Config
}

// NewWatcher loads path and starts watching it for changes.
func NewWatcher(path string) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config watcher requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, v: v, snapshot: cfg}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("[config] reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("[config] reloaded %s", w.path)
	})
	v.WatchConfig()
	return w, nil
}

func (w *Watcher) reload() error {
	if err := w.v.ReadInConfig(); err != nil {
		return err
	}
	cfg, err := decode(w.v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.snapshot = cfg
	w.mu.Unlock()
	return nil
}

// Snapshot returns the current configuration. The returned value must be
// treated as read-only.
func (w *Watcher) Snapshot() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// LoaderPolicy adapts the live loader knobs into the loader's policy type.
func (w *Watcher) LoaderPolicy() loader.Policy {
	l := w.Snapshot().Loader
	return loader.Policy{
		MaxSpanBars:             l.MaxSpanBars,
		MinInterval:             time.Duration(l.MinIntervalMillis) * time.Millisecond,
		CoalesceBars:            l.GapCoalesceBars,
		RetryMax:                l.RetryMax,
		BackoffBase:             time.Duration(l.BackoffBaseSeconds) * time.Second,
		BackoffMax:              time.Duration(l.BackoffMaxSeconds) * time.Second,
		RateLimitBackoff:        time.Duration(l.RateLimitBackoffSeconds) * time.Second,
		RateLimitMaxConsecutive: l.RateLimitMaxConsecutive,
	}
}

// HeadPolicy adapts the live head-timestamp knob.
func (w *Watcher) HeadPolicy() loader.HeadPolicy {
	l := w.Snapshot().Loader
	return loader.HeadPolicy{
		AdjustThreshold: time.Duration(l.HeadAdjustThresholdDays) * 24 * time.Hour,
	}
}
