package loader

import (
	"tickvault/internal/store/ohlcv"
)

// Segment is one provider-compliant slice of a gap. Seq numbers restart at 0
// within each gap; Pos is the position in the flattened work queue.
type Segment struct {
	Gap   int   `json:"gap"`
	Seq   int   `json:"seq"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// SplitGap partitions gap into ordered segments of at most maxSpan
// milliseconds. Segments tile the gap exactly: no overlap, no hole, the last
// one takes the remainder. Pacing between segments is the fetch loop's job,
// not encoded here.
func SplitGap(gapIdx int, gap ohlcv.Range, maxSpan int64) []Segment {
	if gap.End <= gap.Start {
		return nil
	}
	if maxSpan <= 0 {
		return []Segment{{Gap: gapIdx, Seq: 0, Start: gap.Start, End: gap.End}}
	}
	n := (gap.Duration() + maxSpan - 1) / maxSpan
	out := make([]Segment, 0, n)
	cursor := gap.Start
	for seq := 0; cursor < gap.End; seq++ {
		segEnd := cursor + maxSpan
		if segEnd > gap.End {
			segEnd = gap.End
		}
		out = append(out, Segment{Gap: gapIdx, Seq: seq, Start: cursor, End: segEnd})
		cursor = segEnd
	}
	return out
}

// BuildQueue flattens all gaps into a single ordered work queue.
func BuildQueue(gaps []ohlcv.Range, maxSpan int64) []Segment {
	var queue []Segment
	for i, gap := range gaps {
		queue = append(queue, SplitGap(i, gap, maxSpan)...)
	}
	return queue
}
