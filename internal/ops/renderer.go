package ops

import (
	"fmt"
	"time"
)

// ProgressRenderer turns a generic ProgressState into a human-readable
// message using domain context. Implementations are pure functions of their
// input and perform no I/O.
type ProgressRenderer interface {
	Render(state ProgressState) string
	// Enhance may inject derived context (for example a formatted ETA in
	// Extra) before rendering. Implementations must return the state
	// unchanged when they have nothing to add.
	Enhance(state ProgressState) ProgressState
}

// DataProgressRenderer renders data-loading progress with symbol, timeframe
// and segment position.
type DataProgressRenderer struct{}

func (DataProgressRenderer) Render(s ProgressState) string {
	c := s.Context
	if c.TotalSegments > 0 {
		return fmt.Sprintf("%s %s [%s] segment %d/%d, %d bars (%.1f%%)",
			c.Symbol, c.Timeframe, c.Mode, c.CurrentSegment, c.TotalSegments, c.BarsFetched, s.Percentage)
	}
	if s.StepDetail != "" {
		return fmt.Sprintf("%s %s: %s (%.1f%%)", c.Symbol, c.Timeframe, s.StepDetail, s.Percentage)
	}
	return fmt.Sprintf("%s %s (%.1f%%)", c.Symbol, c.Timeframe, s.Percentage)
}

func (DataProgressRenderer) Enhance(s ProgressState) ProgressState {
	if s.EstimatedLeft > 0 {
		if s.Extra == nil {
			s.Extra = make(map[string]string)
		}
		s.Extra["eta"] = formatETA(s.EstimatedLeft)
	}
	return s
}

// TrainingProgressRenderer renders model-training progress with epoch and
// batch counters.
type TrainingProgressRenderer struct{}

func (TrainingProgressRenderer) Render(s ProgressState) string {
	c := s.Context
	if c.Epoch > 0 {
		return fmt.Sprintf("epoch %d batch %d (%.1f%%)", c.Epoch, c.Batch, s.Percentage)
	}
	return fmt.Sprintf("training (%.1f%%)", s.Percentage)
}

func (TrainingProgressRenderer) Enhance(s ProgressState) ProgressState {
	if s.EstimatedLeft > 0 {
		if s.Extra == nil {
			s.Extra = make(map[string]string)
		}
		s.Extra["eta"] = formatETA(s.EstimatedLeft)
	}
	return s
}

func formatETA(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	return d.Round(time.Second).String()
}
