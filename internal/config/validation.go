package config

import (
	"fmt"
	"strings"

	"tickvault/internal/market"
)

func validate(c *Config) error {
	if err := c.Provider.validate(); err != nil {
		return err
	}
	if err := c.Loader.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	if err := c.Training.validate(); err != nil {
		return err
	}
	return nil
}

func (p *ProviderConfig) validate() error {
	if strings.TrimSpace(p.BaseURL) == "" {
		return fmt.Errorf("provider.base_url cannot be empty")
	}
	if p.TimeoutSeconds <= 0 {
		return fmt.Errorf("provider.timeout_seconds must be positive")
	}
	return nil
}

func (l *LoaderConfig) validate() error {
	if l.MaxSpanBars <= 0 {
		return fmt.Errorf("loader.max_span_bars must be positive")
	}
	if l.GapCoalesceBars < 0 {
		return fmt.Errorf("loader.gap_coalesce_bars cannot be negative")
	}
	if l.RetryMax < 0 {
		return fmt.Errorf("loader.retry_max cannot be negative")
	}
	if l.BackoffMaxSeconds < l.BackoffBaseSeconds {
		return fmt.Errorf("loader.backoff_max_seconds must be >= backoff_base_seconds")
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if s.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.interval_minutes must be positive")
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("scheduler.targets requires at least one entry when enabled")
	}
	for i, t := range s.Targets {
		if strings.TrimSpace(t.Symbol) == "" {
			return fmt.Errorf("scheduler.targets[%d] missing symbol", i)
		}
		if _, err := market.ParseTimeframe(t.Timeframe); err != nil {
			return fmt.Errorf("scheduler.targets[%d]: %w", i, err)
		}
	}
	return nil
}

func (t *TrainingConfig) validate() error {
	if t.LearningRate <= 0 || t.LearningRate >= 1 {
		return fmt.Errorf("training.learning_rate must be in (0,1)")
	}
	return nil
}
