package loader

import (
	"context"
	"fmt"

	"tickvault/internal/market"
	"tickvault/internal/store/ohlcv"
)

// Load modes. Backfill and full treat the uncovered history as a few large
// gaps; tail digs out every internal hole because users expect dense
// validation near now.
const (
	ModeBackfill = "backfill"
	ModeFull     = "full"
	ModeTail     = "tail"
)

func validMode(mode string) bool {
	switch mode {
	case ModeBackfill, ModeFull, ModeTail:
		return true
	}
	return false
}

// CoverageReader is the slice of the OHLCV store the analyzer needs.
type CoverageReader interface {
	CoveredRanges(ctx context.Context, symbol, timeframe string, step, start, end int64) ([]ohlcv.Range, error)
}

// GapAnalyzer diffs a requested range against local coverage and returns the
// missing sub-ranges.
type GapAnalyzer struct {
	store CoverageReader
}

func NewGapAnalyzer(store CoverageReader) *GapAnalyzer {
	return &GapAnalyzer{store: store}
}

// FindGaps returns the ordered, non-overlapping complement of local coverage
// within [start,end). coalesceBars only applies outside tail mode: covered
// islands shorter than that many bars are treated as uncovered, which fuses
// the micro-gaps around them into one large gap (re-fetching the island is
// harmless because merges are idempotent).
func (a *GapAnalyzer) FindGaps(ctx context.Context, symbol string, tf market.Timeframe, start, end int64, mode string, coalesceBars int) ([]ohlcv.Range, error) {
	if end <= start {
		return nil, fmt.Errorf("start/end must form a range")
	}
	if !validMode(mode) {
		return nil, fmt.Errorf("unknown load mode: %s", mode)
	}
	step := tf.Millis()
	covered, err := a.store.CoveredRanges(ctx, symbol, tf.Key, step, start, end)
	if err != nil {
		return nil, err
	}
	if mode != ModeTail && coalesceBars > 0 {
		covered = dropShortRuns(covered, int64(coalesceBars)*step, start, end)
	}
	return complement(covered, start, end), nil
}

// dropShortRuns removes covered runs shorter than minSpan so the surrounding
// gaps merge. Runs touching the request boundary are kept: they anchor the
// range and re-fetching them buys nothing.
func dropShortRuns(covered []ohlcv.Range, minSpan, start, end int64) []ohlcv.Range {
	out := covered[:0]
	for _, r := range covered {
		if r.Duration() >= minSpan || r.Start <= start || r.End >= end {
			out = append(out, r)
		}
	}
	return out
}

// complement returns [start,end) minus the covered ranges. Input ranges are
// sorted and non-overlapping (the store merges them on read).
func complement(covered []ohlcv.Range, start, end int64) []ohlcv.Range {
	var gaps []ohlcv.Range
	cursor := start
	for _, r := range covered {
		if r.End <= cursor {
			continue
		}
		if r.Start > cursor {
			gapEnd := r.Start
			if gapEnd > end {
				gapEnd = end
			}
			if gapEnd > cursor {
				gaps = append(gaps, ohlcv.Range{Start: cursor, End: gapEnd})
			}
		}
		if r.End > cursor {
			cursor = r.End
		}
		if cursor >= end {
			return gaps
		}
	}
	if cursor < end {
		gaps = append(gaps, ohlcv.Range{Start: cursor, End: end})
	}
	return gaps
}
