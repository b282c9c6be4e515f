package hostsvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{BaseURL: server.URL, BreakerThreshold: 3})
	require.NoError(t, err)
	return client
}

func TestFetchHistoricalDecodesRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/data/historical", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows":[[60000,100,101,99,100.5,10],[120000,100.5,102,100,101,12]]}`))
	})

	rows, err := client.FetchHistorical(context.Background(), "BTCUSDT", "1m", 60000, 180000)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(60000), rows[0].OpenTime)
	assert.Equal(t, 101.0, rows[0].High)
	assert.Equal(t, 12.0, rows[1].Volume)
}

func TestFetchHistoricalErrorEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"RATE_LIMIT","message":"slow down"}}`))
	})

	_, err := client.FetchHistorical(context.Background(), "BTCUSDT", "1m", 0, 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatus)
	assert.Equal(t, "RATE_LIMIT", apiErr.Code)
}

func TestFetchHistoricalEnvelopeWith200(t *testing.T) {
	// Some envelopes arrive with a 2xx status; they still count as errors.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":{"code":"INTERNAL","message":"oops"}}`))
	})

	_, err := client.FetchHistorical(context.Background(), "BTCUSDT", "1m", 0, 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus)
}

func TestFetchHistoricalMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows":[["not","numbers","at","all","x","y"]]}`))
	})

	_, err := client.FetchHistorical(context.Background(), "BTCUSDT", "1m", 0, 1)
	var malformed *ErrMalformedResponse
	assert.ErrorAs(t, err, &malformed)
}

func TestHeadTimestampVariants(t *testing.T) {
	responses := map[string]string{
		"number": `{"earliest": 1609459200000}`,
		"string": `{"earliest": "2021-01-01T00:00:00Z"}`,
		"null":   `{"earliest": null}`,
	}
	var current string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/head-timestamp", r.URL.Path)
		assert.Equal(t, "TRADES", r.URL.Query().Get("what_to_show"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(responses[current]))
	})

	current = "number"
	ts, found, err := client.HeadTimestamp(context.Background(), "BTCUSDT", "1h", "TRADES")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1609459200000), ts)

	current = "string"
	ts, found, err = client.HeadTimestamp(context.Background(), "BTCUSDT", "1h", "TRADES")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1609459200000), ts)

	current = "null"
	_, found, err = client.HeadTimestamp(context.Background(), "BTCUSDT", "1h", "TRADES")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":"BOOM","message":"down"}}`))
	})

	for i := 0; i < 3; i++ {
		_, err := client.FetchHistorical(context.Background(), "BTCUSDT", "1m", 0, 1)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	_, err := client.FetchHistorical(context.Background(), "BTCUSDT", "1m", 0, 1)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestHealth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"healthy": true}`))
	})
	ok, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
