package training

import (
	"context"
	"fmt"

	"tickvault/internal/logger"
	"tickvault/internal/market"
	"tickvault/internal/ops"
)

// Trainer is the pluggable training backend. The runner owns orchestration
// (progress, cancellation, data access); the trainer owns the math.
type Trainer interface {
	// TrainBatch consumes one batch of candles and returns the batch loss.
	TrainBatch(ctx context.Context, epoch, batch int, candles []market.Candle) (float64, error)
}

// CandleReader is the storage slice the runner feeds batches from.
type CandleReader interface {
	RangeCandles(ctx context.Context, symbol, timeframe string, start, end int64) ([]market.Candle, error)
}

// TrainRequest describes one training operation over locally stored candles.
type TrainRequest struct {
	Model     string `json:"model"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Epochs    int    `json:"epochs"`
	BatchSize int    `json:"batch_size"`
}

// TrainResult is the operation's terminal payload.
type TrainResult struct {
	Model       string  `json:"model"`
	Symbol      string  `json:"symbol"`
	Timeframe   string  `json:"timeframe"`
	Epochs      int     `json:"epochs"`
	EpochsDone  int     `json:"epochs_done"`
	Bars        int     `json:"bars"`
	FinalLoss   float64 `json:"final_loss"`
	Interrupted bool    `json:"interrupted,omitempty"`
}

// Runner drives an epoch/batch training loop over stored candles, reporting
// progress and honoring cancellation between batches.
type Runner struct {
	store   CandleReader
	trainer Trainer
}

func NewRunner(store CandleReader, trainer Trainer) *Runner {
	return &Runner{store: store, trainer: trainer}
}

// Run executes one training operation. Cancellation between batches keeps
// the result of completed epochs.
func (r *Runner) Run(ctx context.Context, req TrainRequest, progress *ops.ProgressManager, token *ops.CancelToken) (*TrainResult, error) {
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if req.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive")
	}
	if req.BatchSize <= 0 {
		req.BatchSize = 256
	}
	start, end := tf.AlignRange(req.Start, req.End)
	candles, err := r.store.RangeCandles(ctx, req.Symbol, tf.Key, start, end)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles stored for %s %s in requested range", req.Symbol, tf.Key)
	}

	batches := (len(candles) + req.BatchSize - 1) / req.BatchSize
	totalBatches := req.Epochs * batches
	result := &TrainResult{
		Model: req.Model, Symbol: req.Symbol, Timeframe: tf.Key,
		Epochs: req.Epochs, Bars: len(candles),
	}
	pctx := &ops.ProgressContext{Symbol: req.Symbol, Timeframe: tf.Key}
	progress.Update(ops.ProgressUpdate{
		Percentage:    0,
		Message:       fmt.Sprintf("training %s on %d bars", req.Model, len(candles)),
		ExpectedItems: int64(totalBatches),
		Context:       pctx,
	})

	done := 0
	for epoch := 1; epoch <= req.Epochs; epoch++ {
		for batch := 0; batch < batches; batch++ {
			if token.Cancelled() {
				result.Interrupted = true
				return result, ops.ErrCancelled
			}
			lo := batch * req.BatchSize
			hi := lo + req.BatchSize
			if hi > len(candles) {
				hi = len(candles)
			}
			loss, err := r.trainer.TrainBatch(ctx, epoch, batch, candles[lo:hi])
			if err != nil {
				result.Interrupted = true
				return result, fmt.Errorf("epoch %d batch %d: %w", epoch, batch, err)
			}
			result.FinalLoss = loss
			done++
			pctx.Epoch = epoch
			pctx.Batch = batch + 1
			progress.Update(ops.ProgressUpdate{
				Percentage:     100 * float64(done) / float64(totalBatches),
				Message:        fmt.Sprintf("epoch %d/%d", epoch, req.Epochs),
				ItemsProcessed: int64(done),
				Context:        pctx,
			})
		}
		result.EpochsDone = epoch
	}
	logger.Infof("[training] %s %s %s done: %d epochs, final loss %.6f",
		req.Model, req.Symbol, tf.Key, result.EpochsDone, result.FinalLoss)
	return result, nil
}
