package estimate

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Features keys a duration bucket. Operations with the same features are
// assumed to take comparable time.
type Features struct {
	SymbolClass string
	Timeframe   string
	Mode        string
	SizeBucket  string
}

func (f Features) key() string {
	return strings.Join([]string{f.SymbolClass, f.Timeframe, f.Mode, f.SizeBucket}, "|")
}

// SizeBucket coarsens an expected item count into one of four buckets so
// sparse sample data still aggregates.
func SizeBucket(expectedItems int64) string {
	switch {
	case expectedItems < 1_000:
		return "s"
	case expectedItems < 10_000:
		return "m"
	case expectedItems < 100_000:
		return "l"
	default:
		return "xl"
	}
}

type sample struct {
	observed   time.Duration
	recordedAt time.Time
}

type ring struct {
	samples []sample
	next    int
	filled  bool
}

func (r *ring) add(s sample) {
	if len(r.samples) == 0 {
		return
	}
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.filled = true
	}
}

// ordered returns samples oldest first.
func (r *ring) ordered() []sample {
	if !r.filled {
		return r.samples[:r.next]
	}
	out := make([]sample, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)
	return out
}

// Engine learns typical operation duration per feature bucket from a small
// ring of recent observations. Estimates are recency-weighted averages;
// buckets with no samples report ok=false so callers can tolerate a missing
// ETA.
type Engine struct {
	mu       sync.RWMutex
	ringSize int
	buckets  map[string]*ring
}

func NewEngine(ringSize int) *Engine {
	if ringSize <= 0 {
		ringSize = 16
	}
	return &Engine{
		ringSize: ringSize,
		buckets:  make(map[string]*ring),
	}
}

// Record stores one observed duration for the feature bucket.
func (e *Engine) Record(f Features, observed time.Duration) {
	if observed <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.buckets[f.key()]
	if !ok {
		b = &ring{samples: make([]sample, e.ringSize)}
		e.buckets[f.key()] = b
	}
	b.add(sample{observed: observed, recordedAt: time.Now()})
}

// Estimate returns the expected duration for the bucket, most-recent samples
// weighted heaviest. ok is false on cold start.
func (e *Engine) Estimate(f Features) (time.Duration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.buckets[f.key()]
	if !ok {
		return 0, false
	}
	samples := b.ordered()
	if len(samples) == 0 {
		return 0, false
	}
	var weighted float64
	var total float64
	for i, s := range samples {
		w := float64(i + 1)
		weighted += w * float64(s.observed)
		total += w
	}
	return time.Duration(weighted / total), true
}

// SampleCount reports how many observations the bucket currently holds.
func (e *Engine) SampleCount(f Features) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.buckets[f.key()]
	if !ok {
		return 0
	}
	return len(b.ordered())
}

// String satisfies fmt.Stringer for log lines.
func (f Features) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", f.SymbolClass, f.Timeframe, f.Mode, f.SizeBucket)
}
