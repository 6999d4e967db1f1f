package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/insightsync/internal/clock"
	"github.com/smallbiznis/insightsync/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	client *Client
	clock  *clock.FakeClock
}

func newTestClient(t *testing.T, srv *httptest.Server) testEnv {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC))
	monitor := ratelimit.NewUsageMonitor(nil, clk, nil, ratelimit.WithJitter(func() float64 { return 1 }))
	policy := DefaultRetryPolicy(clk)
	policy.Rand = func() float64 { return 0 }

	client := NewClient(Config{
		AppID:      "app",
		AppSecret:  "secret",
		APIVersion: "v23.0",
		BaseURL:    srv.URL,
	}, monitor, nil, WithHTTPClient(srv.Client()), WithRetryPolicy(policy))
	return testEnv{client: client, clock: clk}
}

func TestRequestRetriesServerErrorsUntilBudgetSpent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	_, err := env.client.GetCampaigns(context.Background(), "act_1", "token")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, 4, apiErr.Attempts)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, "boom", apiErr.Message)
	assert.Equal(t, []time.Duration{
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
	}, env.clock.Sleeps())
}

func TestRequestFailsFastOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	_, err := env.client.GetCampaigns(context.Background(), "act_1", "token")
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.Retryable)
	assert.Equal(t, 1, apiErr.Attempts)
	assert.Empty(t, env.clock.Sleeps())
}

func TestRequestRetriesTooManyRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"c1","name":"Spring"}]}`))
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	rows, err := env.client.GetCampaigns(context.Background(), "act_1", "token")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRequestThrottlesAfterHighUsageHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ratelimit.HeaderBusinessUseCase, `{"act_1":[{"type":"ads_insights","call_count":92,"total_cputime":1,"total_time":1}]}`)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	_, err := env.client.GetCampaigns(context.Background(), "act_1", "token")
	require.NoError(t, err)
	assert.Empty(t, env.clock.Sleeps())

	_, err = env.client.GetCampaigns(context.Background(), "act_1", "token")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{120 * time.Second}, env.clock.Sleeps())

	snap, ok := env.client.Monitor().Snapshot("act_1")
	require.True(t, ok)
	assert.Equal(t, 92.0, snap.UsagePercent)
}

func TestRequestRejectsUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	_, err := env.client.GetCampaigns(context.Background(), "act_1", "token")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestRetryPolicyCountsAttempts(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	policy := RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxJitter: 200 * time.Millisecond, Clock: clk, Rand: func() float64 { return 0.5 }}

	attempts := 0
	err := policy.Do(context.Background(), func(attempt int) error {
		attempts = attempt
		return errors.New("transient")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 300 * time.Millisecond}, clk.Sleeps())

	attempts = 0
	err = policy.Do(context.Background(), func(attempt int) error {
		attempts = attempt
		return Permanent(errors.New("nope"))
	}, nil)
	assert.EqualError(t, err, "nope")
	assert.Equal(t, 1, attempts)
}

func TestMissingTokenIsRejectedLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	_, err := env.client.GetInsightsDaily(context.Background(), "act_1", " ", "2024-01-01", "2024-01-02", 0)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestRequestBuildErrorIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server")
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	err := env.client.do(context.Background(), call{
		endpoint: EndpointCampaigns,
		method:   http.MethodGet,
		url:      srv.URL + "/act_1/\x7fcampaigns",
		query:    map[string][]string{"fields": {"id"}},
		resource: "act_1",
	}, nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrInvalidRequest)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.Retryable)
	assert.Equal(t, 1, apiErr.Attempts)
	assert.Empty(t, env.clock.Sleeps())
}

func TestRetryableTransportError(t *testing.T) {
	ctx := context.Background()
	canceled, cancel := context.WithCancel(ctx)
	cancel()

	assert.True(t, retryableTransportError(ctx, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
	assert.False(t, retryableTransportError(ctx, nil))
	assert.False(t, retryableTransportError(ctx, fmt.Errorf("%w: bad url", ErrInvalidRequest)))
	assert.False(t, retryableTransportError(ctx, context.Canceled))
	assert.False(t, retryableTransportError(canceled, errors.New("reset")))
}
