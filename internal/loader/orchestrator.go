package loader

import (
	"context"
	"fmt"
	"time"

	"tickvault/internal/logger"
	"tickvault/internal/market"
	"tickvault/internal/metrics"
	"tickvault/internal/ops"
	"tickvault/internal/store/ohlcv"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"
)

// HistoricalSource is the provider slice the loader fetches from.
type HistoricalSource interface {
	FetchHistorical(ctx context.Context, symbol, timeframe string, start, end int64) ([]market.Candle, error)
}

// CandleStore is the storage slice the loader reads coverage from and merges
// fetched rows into.
type CandleStore interface {
	CoverageReader
	UpsertCandles(ctx context.Context, symbol, timeframe string, candles []market.Candle) (int, error)
	CountRange(ctx context.Context, symbol, timeframe string, start, end int64) (int64, error)
}

// RangeValidator soft-adjusts a requested range against the provider's
// earliest available timestamp.
type RangeValidator interface {
	ValidateAndAdjust(ctx context.Context, symbol, timeframe string, start, end int64) (int64, bool, string, error)
}

// Policy is the hot-reloadable knob set for segmentation, pacing and retry.
// The loader re-reads it through a provider func so a config reload takes
// effect on the next segment, not the next operation.
type Policy struct {
	// MaxSpanBars caps a single provider request, in bars of the requested
	// timeframe.
	MaxSpanBars int64
	// MinInterval is the pacing floor between provider requests.
	MinInterval time.Duration
	// CoalesceBars: covered islands shorter than this fuse their surrounding
	// gaps in backfill/full mode.
	CoalesceBars int

	RetryMax    int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// RateLimitBackoff is the wait floor after a provider rate-limit reply.
	RateLimitBackoff time.Duration
	// RateLimitMaxConsecutive aborts the operation after this many
	// rate-limit replies in a row; the provider is telling us to stop.
	RateLimitMaxConsecutive int
}

func (p Policy) withDefaults() Policy {
	if p.MaxSpanBars <= 0 {
		p.MaxSpanBars = 5000
	}
	if p.MinInterval <= 0 {
		p.MinInterval = 300 * time.Millisecond
	}
	if p.CoalesceBars < 0 {
		p.CoalesceBars = 0
	}
	if p.RetryMax <= 0 {
		p.RetryMax = 4
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = 2 * time.Second
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = 60 * time.Second
	}
	if p.RateLimitBackoff <= 0 {
		p.RateLimitBackoff = 15 * time.Second
	}
	if p.RateLimitMaxConsecutive <= 0 {
		p.RateLimitMaxConsecutive = 5
	}
	return p
}

// LoadRequest describes one data-loading operation. Start/End are epoch
// milliseconds; the loader aligns them to the timeframe grid.
type LoadRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Mode      string `json:"mode"`
}

// LoadResult is the operation's terminal payload. It is also populated on
// cancellation and failure so callers can see how far the load got and
// resume from there.
type LoadResult struct {
	Symbol         string       `json:"symbol"`
	Timeframe      string       `json:"timeframe"`
	Mode           string       `json:"mode"`
	RequestedStart int64        `json:"requested_start"`
	EffectiveStart int64        `json:"effective_start"`
	End            int64        `json:"end"`
	Adjusted       bool         `json:"adjusted"`
	GapsFound      int          `json:"gaps_found"`
	SegmentsTotal  int          `json:"segments_total"`
	SegmentsDone   int          `json:"segments_done"`
	RowsFetched    int64        `json:"rows_fetched"`
	RowsMerged     int64        `json:"rows_merged"`
	BarsStored     int64        `json:"bars_stored"`
	Warnings       []string     `json:"warnings,omitempty"`
	FailedSegment  *ohlcv.Range `json:"failed_segment,omitempty"`
}

// DataLoadingOrchestrator drives one backfill/full/tail load end to end:
// range validation, gap analysis, segmentation, paced fetching and idempotent
// merging, reporting progress and honoring cancellation between segments.
type DataLoadingOrchestrator struct {
	source   HistoricalSource
	store    CandleStore
	analyzer *GapAnalyzer
	head     RangeValidator
	policy   func() Policy
	limiter  *rate.Limiter
}

func NewDataLoadingOrchestrator(source HistoricalSource, store CandleStore, head RangeValidator, policy func() Policy) *DataLoadingOrchestrator {
	if policy == nil {
		policy = func() Policy { return Policy{} }
	}
	initial := policy().withDefaults()
	return &DataLoadingOrchestrator{
		source:   source,
		store:    store,
		analyzer: NewGapAnalyzer(store),
		head:     head,
		policy:   policy,
		limiter:  rate.NewLimiter(rate.Every(initial.MinInterval), 1),
	}
}

// Load runs one loading operation. The returned result is non-nil whenever
// enough of the request parsed to describe partial progress, including on
// cancellation and failure.
func (o *DataLoadingOrchestrator) Load(ctx context.Context, req LoadRequest, progress *ops.ProgressManager, token *ops.CancelToken) (*LoadResult, error) {
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, fatalError(err)
	}
	if req.Symbol == "" {
		return nil, fatalError(fmt.Errorf("symbol is required"))
	}
	if !validMode(req.Mode) {
		return nil, fatalError(fmt.Errorf("unknown load mode: %s", req.Mode))
	}
	start, end := tf.AlignRange(req.Start, req.End)
	if end <= start {
		return nil, fatalError(fmt.Errorf("range [%d,%d) is empty after aligning to %s grid", req.Start, req.End, tf.Key))
	}

	result := &LoadResult{
		Symbol:         req.Symbol,
		Timeframe:      tf.Key,
		Mode:           req.Mode,
		RequestedStart: start,
		EffectiveStart: start,
		End:            end,
	}
	var warn *multierror.Error
	defer func() {
		for _, e := range warn.WrappedErrors() {
			result.Warnings = append(result.Warnings, e.Error())
		}
	}()
	pctx := &ops.ProgressContext{Symbol: req.Symbol, Timeframe: tf.Key, Mode: req.Mode}
	progress.Update(ops.ProgressUpdate{
		Percentage: 0, Message: "validating requested range",
		ExpectedItems: tf.ExpectedBars(start, end), Context: pctx,
	})

	// Step 1: range validation against the provider's head timestamp.
	effective, adjusted, warning, err := o.head.ValidateAndAdjust(ctx, req.Symbol, tf.Key, start, end)
	if err != nil {
		return result, err
	}
	if adjusted {
		result.EffectiveStart = effective
		result.Adjusted = true
		result.Warnings = append(result.Warnings, warning)
		logger.Warnf("[loader] %s %s: %s", req.Symbol, tf.Key, warning)
		start = effective
	}
	progress.Update(ops.ProgressUpdate{Percentage: 5, Message: "analyzing coverage gaps", Context: pctx})

	// Step 2: diff the effective range against local coverage.
	pol := o.policy().withDefaults()
	gaps, err := o.analyzer.FindGaps(ctx, req.Symbol, tf, start, end, req.Mode, pol.CoalesceBars)
	if err != nil {
		return result, &LoadError{Kind: KindTransient, Err: err}
	}
	result.GapsFound = len(gaps)
	if len(gaps) == 0 {
		// Fully covered already: done without a single provider call.
		if stored, err := o.store.CountRange(ctx, req.Symbol, tf.Key, start, end); err == nil {
			result.BarsStored = stored
		}
		progress.Update(ops.ProgressUpdate{Percentage: 100, Message: "range already covered locally", Context: pctx})
		return result, nil
	}

	queue := BuildQueue(gaps, pol.MaxSpanBars*tf.Millis())
	result.SegmentsTotal = len(queue)
	pctx.TotalSegments = len(queue)
	progress.Update(ops.ProgressUpdate{
		Percentage: 10,
		Message:    fmt.Sprintf("fetching %d segments across %d gaps", len(queue), len(gaps)),
		Context:    pctx,
	})

	// Step 3: sequential segment loop. Cancellation is only honored here, at
	// the top of each iteration; an in-flight provider call always finishes
	// so already-fetched rows are never thrown away.
	consecutiveRateLimits := 0
	for i := range queue {
		seg := queue[i]
		if token.Cancelled() {
			return result, cancelledError(&seg)
		}

		candles, segWarn, err := o.fetchSegment(ctx, req, tf, seg, token, &consecutiveRateLimits)
		warn = multierror.Append(warn, segWarn...)
		if err != nil {
			result.FailedSegment = &ohlcv.Range{Start: seg.Start, End: seg.End}
			return result, err
		}
		metrics.SegmentsFetched.WithLabelValues(tf.Key, req.Mode).Inc()
		result.RowsFetched += int64(len(candles))

		merged, err := o.store.UpsertCandles(ctx, req.Symbol, tf.Key, candles)
		if err != nil {
			result.FailedSegment = &ohlcv.Range{Start: seg.Start, End: seg.End}
			return result, &LoadError{Kind: KindTransient, Segment: &seg, Err: err}
		}
		result.RowsMerged += int64(merged)
		metrics.RowsMerged.Add(float64(merged))
		result.SegmentsDone = i + 1

		pctx.CurrentSegment = i + 1
		pctx.BarsFetched = result.RowsFetched
		progress.Update(ops.ProgressUpdate{
			Percentage:     10 + 90*float64(i+1)/float64(len(queue)),
			Message:        fmt.Sprintf("segment %d/%d merged", i+1, len(queue)),
			ItemsProcessed: result.RowsFetched,
			Context:        pctx,
		})
	}

	if stored, err := o.store.CountRange(ctx, req.Symbol, tf.Key, start, end); err == nil {
		result.BarsStored = stored
	}
	logger.Infof("[loader] %s %s %s done: %d segments, %d rows fetched, %d merged",
		req.Symbol, tf.Key, req.Mode, result.SegmentsDone, result.RowsFetched, result.RowsMerged)
	return result, nil
}

// fetchSegment fetches one segment with the retry policy applied: bounded
// exponential backoff for transient errors, a longer floor for rate limits,
// one repair refetch for malformed data, immediate abort for fatal errors.
func (o *DataLoadingOrchestrator) fetchSegment(ctx context.Context, req LoadRequest, tf market.Timeframe, seg Segment, token *ops.CancelToken, consecutiveRateLimits *int) ([]market.Candle, []error, error) {
	pol := o.policy().withDefaults()
	var warnings []error
	attempts := 0
	qualityRetried := false

	for {
		if token.Cancelled() {
			return nil, warnings, cancelledError(&seg)
		}
		// Pick up pacing changes from a live config reload.
		o.limiter.SetLimit(rate.Every(pol.MinInterval))
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, warnings, cancelledError(&seg)
		}

		raw, err := o.source.FetchHistorical(ctx, req.Symbol, tf.Key, seg.Start, seg.End)
		if err == nil {
			*consecutiveRateLimits = 0
			candles, dropped := sanitize(raw, tf, seg)
			if dropped > 0 {
				msg := fmt.Sprintf("segment %d-%d: dropped %d inconsistent rows", seg.Start, seg.End, dropped)
				if !qualityRetried {
					// One repair refetch; a second bad answer is accepted
					// with a warning rather than looping forever.
					qualityRetried = true
					metrics.SegmentRetries.WithLabelValues(string(KindDataQuality)).Inc()
					logger.Warnf("[loader] %s %s: %s, refetching once", req.Symbol, tf.Key, msg)
					continue
				}
				warnings = append(warnings, fmt.Errorf("%s", msg))
			}
			return candles, warnings, nil
		}

		kind := Classify(err)
		switch kind {
		case KindCancelled:
			return nil, warnings, cancelledError(&seg)
		case KindFatal, KindHeadTimestamp:
			return nil, warnings, &LoadError{Kind: kind, Segment: &seg, Err: err}
		case KindRateLimit:
			*consecutiveRateLimits++
			metrics.SegmentRetries.WithLabelValues(string(kind)).Inc()
			if *consecutiveRateLimits >= pol.RateLimitMaxConsecutive {
				return nil, warnings, &LoadError{Kind: KindRateLimit, Segment: &seg,
					Err: fmt.Errorf("%d consecutive rate limits, aborting: %w", *consecutiveRateLimits, err)}
			}
			wait := pol.RateLimitBackoff * time.Duration(*consecutiveRateLimits)
			if wait > pol.BackoffMax {
				wait = pol.BackoffMax
			}
			logger.Warnf("[loader] %s %s rate limited (%d in a row), backing off %s",
				req.Symbol, tf.Key, *consecutiveRateLimits, wait)
			if !o.sleep(ctx, token, wait) {
				return nil, warnings, cancelledError(&seg)
			}
		case KindDataQuality:
			if qualityRetried {
				return nil, warnings, &LoadError{Kind: kind, Segment: &seg, Err: err}
			}
			qualityRetried = true
			metrics.SegmentRetries.WithLabelValues(string(kind)).Inc()
			logger.Warnf("[loader] %s %s segment %d-%d malformed response, refetching once: %v",
				req.Symbol, tf.Key, seg.Start, seg.End, err)
		default: // transient
			attempts++
			metrics.SegmentRetries.WithLabelValues(string(KindTransient)).Inc()
			if attempts > pol.RetryMax {
				return nil, warnings, &LoadError{Kind: KindTransient, Segment: &seg,
					Err: fmt.Errorf("giving up after %d attempts: %w", attempts, err)}
			}
			wait := pol.BackoffBase << (attempts - 1)
			if wait > pol.BackoffMax {
				wait = pol.BackoffMax
			}
			logger.Warnf("[loader] %s %s segment %d-%d attempt %d failed, retrying in %s: %v",
				req.Symbol, tf.Key, seg.Start, seg.End, attempts, wait, err)
			if !o.sleep(ctx, token, wait) {
				return nil, warnings, cancelledError(&seg)
			}
		}
	}
}

// sanitize fills derived fields, drops rows outside the segment or failing
// the OHLC consistency check, and returns how many were dropped.
func sanitize(raw []market.Candle, tf market.Timeframe, seg Segment) ([]market.Candle, int) {
	step := tf.Millis()
	out := make([]market.Candle, 0, len(raw))
	dropped := 0
	for _, c := range raw {
		c.CloseTime = c.OpenTime + step
		if c.OpenTime < seg.Start || c.OpenTime >= seg.End || !c.Valid() {
			dropped++
			continue
		}
		out = append(out, c)
	}
	return out, dropped
}

// sleep waits for d unless the context dies or cancellation is requested.
// Returns false when the wait was cut short.
func (o *DataLoadingOrchestrator) sleep(ctx context.Context, token *ops.CancelToken, d time.Duration) bool {
	const poll = 200 * time.Millisecond
	deadline := time.Now().Add(d)
	for {
		if token.Cancelled() {
			return false
		}
		left := time.Until(deadline)
		if left <= 0 {
			return true
		}
		if left > poll {
			left = poll
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(left):
		}
	}
}
