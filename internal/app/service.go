package app

import (
	"context"
	"fmt"

	"tickvault/internal/estimate"
	"tickvault/internal/loader"
	"tickvault/internal/market"
	"tickvault/internal/metrics"
	"tickvault/internal/ops"
	"tickvault/internal/store/ohlcv"
	"tickvault/internal/training"
)

// Service is the submission layer between transports and the operation
// machinery: it validates requests, rejects duplicate active keys, wires the
// right renderer/estimator and hands the work to the shared orchestrator.
type Service struct {
	registry     *ops.Registry
	orchestrator *ops.Orchestrator
	loads        *loader.DataLoadingOrchestrator
	trainer      *training.Runner
	store        *ohlcv.Store
	estimates    *estimate.Engine
	catalog      *estimate.Catalog
}

func NewService(registry *ops.Registry, orchestrator *ops.Orchestrator, loads *loader.DataLoadingOrchestrator, trainer *training.Runner, store *ohlcv.Store, estimates *estimate.Engine, catalog *estimate.Catalog) *Service {
	return &Service{
		registry:     registry,
		orchestrator: orchestrator,
		loads:        loads,
		trainer:      trainer,
		store:        store,
		estimates:    estimates,
		catalog:      catalog,
	}
}

// SubmitLoad starts a data-loading operation and returns its pending
// snapshot. One active load per (symbol, timeframe).
func (s *Service) SubmitLoad(req loader.LoadRequest) (ops.Operation, error) {
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		return ops.Operation{}, err
	}
	if s.registry.ActiveForKey(ops.TypeDataLoad, req.Symbol, tf.Key) {
		return ops.Operation{}, fmt.Errorf("a load for %s %s is already active", req.Symbol, tf.Key)
	}
	start, end := tf.AlignRange(req.Start, req.End)
	features := estimate.Features{
		SymbolClass: s.catalog.Classify(req.Symbol),
		Timeframe:   tf.Key,
		Mode:        req.Mode,
		SizeBucket:  estimate.SizeBucket(tf.ExpectedBars(start, end)),
	}
	return s.orchestrator.Run(ops.RunSpec{
		Type:      ops.TypeDataLoad,
		Metadata:  ops.Metadata{Symbol: req.Symbol, Timeframe: tf.Key, Mode: req.Mode},
		Renderer:  ops.DataProgressRenderer{},
		Estimator: estimate.NewRemainingEstimator(s.estimates, features),
		Fn: func(ctx context.Context, progress *ops.ProgressManager, token *ops.CancelToken) (any, error) {
			return s.loads.Load(ctx, req, progress, token)
		},
	})
}

// SubmitTraining starts a training operation over locally stored candles.
func (s *Service) SubmitTraining(req training.TrainRequest) (ops.Operation, error) {
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		return ops.Operation{}, err
	}
	if s.registry.ActiveForKey(ops.TypeTraining, req.Symbol, tf.Key) {
		return ops.Operation{}, fmt.Errorf("a training run for %s %s is already active", req.Symbol, tf.Key)
	}
	start, end := tf.AlignRange(req.Start, req.End)
	features := estimate.Features{
		SymbolClass: s.catalog.Classify(req.Symbol),
		Timeframe:   tf.Key,
		Mode:        "training",
		SizeBucket:  estimate.SizeBucket(tf.ExpectedBars(start, end)),
	}
	return s.orchestrator.Run(ops.RunSpec{
		Type:      ops.TypeTraining,
		Metadata:  ops.Metadata{Symbol: req.Symbol, Timeframe: tf.Key, Mode: "training"},
		Renderer:  ops.TrainingProgressRenderer{},
		Estimator: estimate.NewRemainingEstimator(s.estimates, features),
		Fn: func(ctx context.Context, progress *ops.ProgressManager, token *ops.CancelToken) (any, error) {
			return s.trainer.Run(ctx, req, progress, token)
		},
	})
}

// Operation returns a snapshot by id.
func (s *Service) Operation(id string) (ops.Operation, bool) {
	return s.registry.Get(id)
}

// Operations lists snapshots matching the filter, newest first.
func (s *Service) Operations(filter ops.ListFilter) []ops.Operation {
	return s.registry.List(filter)
}

// Cancel requests cancellation; terminal operations report success.
func (s *Service) Cancel(id, reason string) error {
	if err := s.registry.RequestCancel(id, reason); err != nil {
		return err
	}
	metrics.CancellationsRequested.Inc()
	return nil
}

// QueryCandles serves the read side with a result window.
func (s *Service) QueryCandles(ctx context.Context, symbol, timeframe string, start, end int64, limit int) ([]market.Candle, error) {
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	return s.store.QueryCandles(ctx, symbol, tf.Key, start, end, limit)
}

// ManifestInfo returns the stored coverage summary for one dataset.
func (s *Service) ManifestInfo(ctx context.Context, symbol, timeframe string) (ohlcv.Manifest, error) {
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return ohlcv.Manifest{}, err
	}
	return s.store.Manifest(ctx, symbol, tf.Key)
}
