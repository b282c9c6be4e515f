package training

import (
	"context"
	"math"

	"tickvault/internal/market"
)

// MomentumTrainer fits a one-parameter momentum predictor
// (next return ≈ alpha * previous return) by per-batch gradient descent.
// Deliberately tiny: it gives training operations real, deterministic work
// without dragging in an ML stack.
type MomentumTrainer struct {
	alpha float64
	lr    float64
}

func NewMomentumTrainer(learningRate float64) *MomentumTrainer {
	if learningRate <= 0 {
		learningRate = 0.05
	}
	return &MomentumTrainer{lr: learningRate}
}

// Alpha exposes the fitted coefficient after training.
func (t *MomentumTrainer) Alpha() float64 { return t.alpha }

func (t *MomentumTrainer) TrainBatch(_ context.Context, _, _ int, candles []market.Candle) (float64, error) {
	if len(candles) < 3 {
		return 0, nil
	}
	var sumSq, grad float64
	n := 0
	for i := 2; i < len(candles); i++ {
		prev := ret(candles[i-2].Close, candles[i-1].Close)
		cur := ret(candles[i-1].Close, candles[i].Close)
		err := cur - t.alpha*prev
		sumSq += err * err
		grad += -2 * err * prev
		n++
	}
	t.alpha -= t.lr * grad / float64(n)
	return sumSq / float64(n), nil
}

func ret(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return math.Log(to / from)
}
