package loader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"tickvault/internal/ops"
	"tickvault/internal/provider/hostsvc"
)

// Kind classifies a load failure for retry decisions and for the operation's
// terminal error field.
type Kind string

const (
	KindTransient     Kind = "transient"
	KindRateLimit     Kind = "rate_limit"
	KindDataQuality   Kind = "data_quality"
	KindHeadTimestamp Kind = "head_timestamp"
	KindCancelled     Kind = "cancelled"
	KindFatal         Kind = "fatal"
)

// LoadError carries the classified kind and, when a segment was in flight,
// its range — so a caller can resume just the missing tail instead of
// restarting the whole backfill.
type LoadError struct {
	Kind    Kind
	Segment *Segment
	Err     error
}

func (e *LoadError) Error() string {
	if e.Segment != nil {
		return fmt.Sprintf("%s [segment %d: %d-%d]: %v", e.Kind, e.Segment.Seq, e.Segment.Start, e.Segment.End, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func cancelledError(seg *Segment) *LoadError {
	return &LoadError{Kind: KindCancelled, Segment: seg, Err: ops.ErrCancelled}
}

func fatalError(err error) *LoadError {
	return &LoadError{Kind: KindFatal, Err: err}
}

// Classify maps a provider error onto a Kind. Unknown errors default to
// transient so one flaky read never kills a long backfill.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Kind
	}
	if errors.Is(err, ops.ErrCancelled) || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	if errors.Is(err, hostsvc.ErrCircuitOpen) {
		return KindTransient
	}
	var malformed *hostsvc.ErrMalformedResponse
	if errors.As(err, &malformed) {
		return KindDataQuality
	}
	var apiErr *hostsvc.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatus == http.StatusTooManyRequests || apiErr.Code == "RATE_LIMIT":
			return KindRateLimit
		case apiErr.HTTPStatus >= 500:
			return KindTransient
		default:
			// 4xx: bad symbol, bad timeframe, bad range. Retrying cannot help.
			return KindFatal
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindTransient
}
