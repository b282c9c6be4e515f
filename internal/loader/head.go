package loader

import (
	"context"
	"fmt"
	"time"

	"tickvault/internal/logger"
	"tickvault/internal/store/headcache"

	"golang.org/x/sync/singleflight"
)

// whatToShowFallbacks is the order of query variants tried when the provider
// answers null: some instruments only report BID/ASK history.
var whatToShowFallbacks = []string{"TRADES", "BID", "ASK", "MIDPOINT"}

// HeadSource is the provider slice the validator needs.
type HeadSource interface {
	HeadTimestamp(ctx context.Context, symbol, timeframe, whatToShow string) (int64, bool, error)
}

// HeadCache abstracts the TTL cache of earliest timestamps.
type HeadCache interface {
	Get(ctx context.Context, symbol, timeframe, subKey string) (headcache.Entry, bool, error)
	Put(ctx context.Context, symbol, timeframe, subKey string, earliest int64) error
}

// HeadPolicy is the hot-reloadable knob set for head-timestamp handling.
type HeadPolicy struct {
	// AdjustThreshold is how far a requested start may fall before the head
	// timestamp without triggering the soft adjustment.
	AdjustThreshold time.Duration
}

// HeadValidator resolves and caches the earliest timestamp a provider can
// serve per (symbol, timeframe, sub_key), and soft-adjusts requested ranges
// that reach too far back.
type HeadValidator struct {
	source HeadSource
	cache  HeadCache
	policy func() HeadPolicy
	group  singleflight.Group
}

func NewHeadValidator(source HeadSource, cache HeadCache, policy func() HeadPolicy) *HeadValidator {
	if policy == nil {
		policy = func() HeadPolicy { return HeadPolicy{AdjustThreshold: 7 * 24 * time.Hour} }
	}
	return &HeadValidator{source: source, cache: cache, policy: policy}
}

// Earliest returns the earliest available open time in ms. When subKey is
// empty, the what-to-show fallbacks are tried in order and the first success
// is cached. ok=false means the provider has no known head timestamp.
func (v *HeadValidator) Earliest(ctx context.Context, symbol, timeframe, subKey string) (int64, bool, error) {
	variants := whatToShowFallbacks
	if subKey != "" {
		variants = []string{subKey}
	}
	for _, variant := range variants {
		if entry, hit, err := v.cache.Get(ctx, symbol, timeframe, variant); err != nil {
			return 0, false, err
		} else if hit {
			return entry.Earliest, true, nil
		}
	}
	// Concurrent misses for the same key collapse into one provider call.
	key := symbol + "|" + timeframe + "|" + subKey
	type headResult struct {
		earliest int64
		found    bool
	}
	res, err, _ := v.group.Do(key, func() (any, error) {
		for _, variant := range variants {
			earliest, found, err := v.source.HeadTimestamp(ctx, symbol, timeframe, variant)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			if cacheErr := v.cache.Put(ctx, symbol, timeframe, variant, earliest); cacheErr != nil {
				logger.Warnf("[head] caching %s %s %s failed: %v", symbol, timeframe, variant, cacheErr)
			}
			return headResult{earliest: earliest, found: true}, nil
		}
		return headResult{}, nil
	})
	if err != nil {
		return 0, false, err
	}
	hr := res.(headResult)
	return hr.earliest, hr.found, nil
}

// ValidateAndAdjust applies the soft-adjustment policy: a requested start
// further than the threshold before the head timestamp moves up to it, with
// a warning — never a failure. An unknown head timestamp passes the request
// through unmodified. The one hard failure is an adjustment that would
// eliminate the entire range.
func (v *HeadValidator) ValidateAndAdjust(ctx context.Context, symbol, timeframe string, start, end int64) (int64, bool, string, error) {
	earliest, found, err := v.Earliest(ctx, symbol, timeframe, "")
	if err != nil {
		// Head lookup failures must not block a load; log and continue.
		logger.Warnf("[head] lookup %s %s failed, passing range through: %v", symbol, timeframe, err)
		return start, false, "", nil
	}
	if !found {
		return start, false, "", nil
	}
	threshold := v.policy().AdjustThreshold.Milliseconds()
	if start >= earliest || earliest-start <= threshold {
		return start, false, "", nil
	}
	if earliest >= end {
		return start, false, "", fatalError(fmt.Errorf(
			"requested range [%d,%d) ends before earliest available data %d", start, end, earliest))
	}
	warning := fmt.Sprintf("requested start %s predates earliest available %s; adjusted",
		time.UnixMilli(start).UTC().Format(time.RFC3339),
		time.UnixMilli(earliest).UTC().Format(time.RFC3339))
	return earliest, true, warning, nil
}
