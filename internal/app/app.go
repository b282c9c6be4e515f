package app

import (
	"context"
	"fmt"
	"time"

	"tickvault/internal/config"
	"tickvault/internal/logger"
	"tickvault/internal/ops"
	"tickvault/internal/scheduler"
	"tickvault/internal/store/headcache"
	"tickvault/internal/store/ohlcv"
	"tickvault/internal/store/opslog"
	httpapi "tickvault/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

const archiveRetention = 90 * 24 * time.Hour

// App owns application-level orchestration: wiring, startup and shutdown.
type App struct {
	cfg          *config.Config
	orchestrator *ops.Orchestrator
	server       *httpapi.Server
	scheduler    *scheduler.Scheduler

	candleStore *ohlcv.Store
	headCache   *headcache.Store
	archive     *opslog.Store
}

// NewApp builds the application from live configuration without starting it.
func NewApp(watcher *config.Watcher, opts ...AppBuilderOption) (*App, error) {
	return NewAppBuilder(watcher, opts...).Build()
}

// Run starts the HTTP server and the tail scheduler and blocks until ctx is
// cancelled or a component fails. Stores are closed on the way out.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	a.orchestrator.SetContext(ctx)
	if pruned, err := a.archive.Prune(ctx, time.Now().Add(-archiveRetention)); err != nil {
		logger.Warnf("[app] pruning operation archive failed: %v", err)
	} else if pruned > 0 {
		logger.Infof("[app] pruned %d archived operations older than %s", pruned, archiveRetention)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		a.scheduler.Start()
		<-ctx.Done()
		a.scheduler.Stop()
		return nil
	})

	logger.Infof("[app] tickvault listening on %s (env=%s)", a.cfg.App.HTTPAddr, a.cfg.App.Env)
	return group.Wait()
}

func (a *App) close() {
	if err := a.candleStore.Close(); err != nil {
		logger.Warnf("[app] closing ohlcv store: %v", err)
	}
	if err := a.headCache.Close(); err != nil {
		logger.Warnf("[app] closing head cache: %v", err)
	}
	if err := a.archive.Close(); err != nil {
		logger.Warnf("[app] closing operations archive: %v", err)
	}
}
