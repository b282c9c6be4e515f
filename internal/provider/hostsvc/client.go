package hostsvc

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tickvault/internal/market"
	"tickvault/internal/pkg/circuit"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// APIError is the host service's error envelope plus the HTTP status it
// arrived with.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("host service error %d/%s: %s", e.HTTPStatus, e.Code, e.Message)
}

// ErrCircuitOpen is returned without touching the network while the breaker
// is open.
var ErrCircuitOpen = fmt.Errorf("host service circuit open")

type Config struct {
	BaseURL          string
	Timeout          time.Duration
	MaxConnections   int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8900"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 8
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

// Client talks to the data-provider host service. The connection pool is
// shared and bounded across all operations; retry policy belongs to the
// caller, not here.
type Client struct {
	http    *resty.Client
	breaker *circuit.Breaker
}

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	transport := &http.Transport{
		MaxConnsPerHost:     final.MaxConnections,
		MaxIdleConns:        final.MaxConnections,
		MaxIdleConnsPerHost: final.MaxConnections,
		IdleConnTimeout:     90 * time.Second,
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(final.BaseURL, "/")).
		SetTimeout(final.Timeout).
		SetTransport(transport).
		SetHeader("Accept", "application/json")
	return &Client{
		http:    client,
		breaker: circuit.NewBreaker("hostsvc", final.BreakerThreshold, final.BreakerCooldown),
	}, nil
}

type historicalRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
}

// FetchHistorical requests OHLCV rows for [start,end) and returns them in
// ascending open-time order.
func (c *Client) FetchHistorical(ctx context.Context, symbol, timeframe string, start, end int64) ([]market.Candle, error) {
	if symbol == "" || timeframe == "" {
		return nil, fmt.Errorf("symbol/timeframe cannot be empty")
	}
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(historicalRequest{Symbol: symbol, Timeframe: timeframe, Start: start, End: end}).
		Post("/data/historical")
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	body := resp.Body()
	if apiErr := decodeError(resp.StatusCode(), body); apiErr != nil {
		if apiErr.HTTPStatus >= 500 || apiErr.HTTPStatus == http.StatusTooManyRequests {
			c.breaker.RecordFailure()
		}
		return nil, apiErr
	}
	if err := validateHistoricalBody(body); err != nil {
		// Shape violations are a provider bug, not a transport failure;
		// leave the breaker alone.
		return nil, err
	}
	c.breaker.RecordSuccess()
	return decodeRows(body), nil
}

// HeadTimestamp asks for the earliest bar the provider can serve. ok is
// false when the provider answers null for this what-to-show variant.
func (c *Client) HeadTimestamp(ctx context.Context, symbol, timeframe, whatToShow string) (int64, bool, error) {
	if !c.breaker.Allow() {
		return 0, false, ErrCircuitOpen
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":       symbol,
			"timeframe":    timeframe,
			"what_to_show": whatToShow,
		}).
		Get("/data/head-timestamp")
	if err != nil {
		c.breaker.RecordFailure()
		return 0, false, err
	}
	body := resp.Body()
	if apiErr := decodeError(resp.StatusCode(), body); apiErr != nil {
		if apiErr.HTTPStatus >= 500 || apiErr.HTTPStatus == http.StatusTooManyRequests {
			c.breaker.RecordFailure()
		}
		return 0, false, apiErr
	}
	c.breaker.RecordSuccess()
	earliest := gjson.GetBytes(body, "earliest")
	if !earliest.Exists() || earliest.Type == gjson.Null {
		return 0, false, nil
	}
	ts, err := parseEarliest(earliest)
	if err != nil {
		return 0, false, err
	}
	return ts, true, nil
}

// Health checks the host service liveness endpoint.
func (c *Client) Health(ctx context.Context) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return false, err
	}
	if resp.StatusCode() != http.StatusOK {
		return false, nil
	}
	return gjson.GetBytes(resp.Body(), "healthy").Bool(), nil
}

// decodeError maps a non-2xx status or an error envelope into an APIError.
func decodeError(status int, body []byte) *APIError {
	errNode := gjson.GetBytes(body, "error")
	if status < 300 && !errNode.Exists() {
		return nil
	}
	apiErr := &APIError{HTTPStatus: status, Code: "UNKNOWN", Message: http.StatusText(status)}
	if errNode.Exists() {
		if code := errNode.Get("code").String(); code != "" {
			apiErr.Code = code
		}
		if msg := errNode.Get("message").String(); msg != "" {
			apiErr.Message = msg
		}
	}
	if status < 300 {
		// Error envelope with a 2xx status still counts as an error.
		apiErr.HTTPStatus = http.StatusBadGateway
	}
	return apiErr
}

func decodeRows(body []byte) []market.Candle {
	rows := gjson.GetBytes(body, "rows")
	out := make([]market.Candle, 0, int(rows.Get("#").Int()))
	rows.ForEach(func(_, row gjson.Result) bool {
		cols := row.Array()
		if len(cols) < 6 {
			return true
		}
		out = append(out, market.Candle{
			OpenTime: cols[0].Int(),
			Open:     cols[1].Float(),
			High:     cols[2].Float(),
			Low:      cols[3].Float(),
			Close:    cols[4].Float(),
			Volume:   cols[5].Float(),
		})
		return true
	})
	return out
}

func parseEarliest(v gjson.Result) (int64, error) {
	if v.Type == gjson.Number {
		return v.Int(), nil
	}
	raw := strings.TrimSpace(v.String())
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UnixMilli(), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	return 0, fmt.Errorf("unparseable earliest timestamp %q", raw)
}
