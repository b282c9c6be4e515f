package app

import (
	"context"
	"fmt"
	"time"

	"tickvault/internal/config"
	"tickvault/internal/estimate"
	"tickvault/internal/loader"
	"tickvault/internal/logger"
	"tickvault/internal/metrics"
	"tickvault/internal/ops"
	"tickvault/internal/provider/hostsvc"
	"tickvault/internal/scheduler"
	"tickvault/internal/store/headcache"
	"tickvault/internal/store/ohlcv"
	"tickvault/internal/store/opslog"
	"tickvault/internal/training"
	httpapi "tickvault/internal/transport/http"
)

// AppBuilder assembles the dependency graph. The override hooks exist so
// tests can substitute fakes without touching the wiring order.
type AppBuilder struct {
	watcher *config.Watcher

	sourceOverride  loader.HistoricalSource
	headSrcOverride loader.HeadSource
}

type AppBuilderOption func(*AppBuilder)

// WithHistoricalSource replaces the host-service client for tests.
func WithHistoricalSource(src loader.HistoricalSource) AppBuilderOption {
	return func(b *AppBuilder) { b.sourceOverride = src }
}

// WithHeadSource replaces the head-timestamp provider for tests.
func WithHeadSource(src loader.HeadSource) AppBuilderOption {
	return func(b *AppBuilder) { b.headSrcOverride = src }
}

func NewAppBuilder(watcher *config.Watcher, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{watcher: watcher}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if b.watcher == nil {
		return nil, fmt.Errorf("nil config watcher")
	}
	cfg := b.watcher.Snapshot()
	logger.SetLevel(cfg.App.LogLevel)

	candleStore, err := ohlcv.NewStore(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("opening ohlcv store failed: %w", err)
	}
	headCache, err := headcache.NewStore(cfg.Storage.HeadCacheDir, time.Duration(cfg.Storage.HeadTTLHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("opening head cache failed: %w", err)
	}
	archive, err := opslog.NewStore(cfg.Storage.OpsDB)
	if err != nil {
		return nil, fmt.Errorf("opening operations archive failed: %w", err)
	}

	client, err := hostsvc.New(hostsvc.Config{
		BaseURL:          cfg.Provider.BaseURL,
		Timeout:          time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		MaxConnections:   cfg.Provider.MaxConnections,
		BreakerThreshold: cfg.Provider.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Provider.BreakerCooldownSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("building host service client failed: %w", err)
	}

	var source loader.HistoricalSource = client
	if b.sourceOverride != nil {
		source = b.sourceOverride
	}
	var headSrc loader.HeadSource = client
	if b.headSrcOverride != nil {
		headSrc = b.headSrcOverride
	}
	headValidator := loader.NewHeadValidator(headSrc, headCache, b.watcher.HeadPolicy)
	loads := loader.NewDataLoadingOrchestrator(source, candleStore, headValidator, b.watcher.LoaderPolicy)

	catalog, err := estimate.LoadCatalog(cfg.Estimate.CatalogPath)
	if err != nil {
		logger.Warnf("[app] symbol catalog %s unavailable (%v), using defaults", cfg.Estimate.CatalogPath, err)
		catalog = estimate.EmptyCatalog()
	}
	estimates := estimate.NewEngine(cfg.Estimate.Window)

	registry := ops.NewRegistry()
	orchestrator := ops.NewOrchestrator(registry)
	orchestrator.OnFinish(func(op ops.Operation, elapsed time.Duration) {
		metrics.OperationsFinished.WithLabelValues(op.Type, op.Status).Inc()
		metrics.OperationDuration.WithLabelValues(op.Type).Observe(elapsed.Seconds())
		if op.Status == ops.StatusCompleted {
			estimates.Record(estimate.Features{
				SymbolClass: catalog.Classify(op.Metadata.Symbol),
				Timeframe:   op.Metadata.Timeframe,
				Mode:        op.Metadata.Mode,
				SizeBucket:  estimate.SizeBucket(op.Progress.ExpectedItems),
			}, elapsed)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := archive.Archive(ctx, op); err != nil {
			logger.Errorf("[app] archiving operation %s failed: %v", op.ID, err)
		}
	})

	runner := training.NewRunner(candleStore, training.NewMomentumTrainer(cfg.Training.LearningRate))

	svc := NewService(registry, orchestrator, loads, runner, candleStore, estimates, catalog)
	server, err := httpapi.NewServer(cfg.App.HTTPAddr, svc)
	if err != nil {
		return nil, err
	}
	tails := scheduler.New(svc, registry, cfg.Scheduler)

	return &App{
		cfg:          cfg,
		orchestrator: orchestrator,
		server:       server,
		scheduler:    tails,
		candleStore:  candleStore,
		headCache:    headCache,
		archive:      archive,
	}, nil
}
