package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/insightsync/internal/clock"
	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/smallbiznis/insightsync/internal/observability/metrics"
	"github.com/smallbiznis/insightsync/internal/ratelimit"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/smallbiznis/insightsync/internal/provider"

// maxErrorBody bounds how much of a failed response is read for diagnostics.
const maxErrorBody = 64 << 10

// Config identifies the provider application and API root.
type Config struct {
	AppID      string
	AppSecret  string
	APIVersion string
	BaseURL    string
}

// Client talks to the ads provider. Every call goes through the shared
// UsageMonitor before it leaves and feeds it the response headers after.
type Client struct {
	cfg     Config
	apiRoot string

	http    *http.Client
	policy  RetryPolicy
	monitor *ratelimit.UsageMonitor
	metrics *metrics.SyncMetrics
	log     *zap.Logger
	tracer  trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(cfg Config, monitor *ratelimit.UsageMonitor, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if monitor == nil {
		monitor = ratelimit.NewUsageMonitor(log, nil, nil)
	}
	c := &Client{
		cfg:     cfg,
		apiRoot: apiRoot(cfg),
		http:    NewHTTPClient(DefaultTransportConfig()),
		policy:  DefaultRetryPolicy(nil),
		monitor: monitor,
		log:     log.Named("provider"),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig is the fx constructor.
func NewFromConfig(cfg config.Config, monitor *ratelimit.UsageMonitor, clk clock.Clock, syncMetrics *metrics.SyncMetrics, log *zap.Logger) *Client {
	return NewClient(Config{
		AppID:      cfg.Provider.AppID,
		AppSecret:  cfg.Provider.AppSecret,
		APIVersion: cfg.Provider.APIVersion,
		BaseURL:    cfg.Provider.BaseURL,
	}, monitor, log,
		WithRetryPolicy(DefaultRetryPolicy(clk)),
		WithMetrics(syncMetrics),
	)
}

func apiRoot(cfg Config) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		return base
	}
	return base + "/" + version
}

// Monitor exposes the shared usage monitor.
func (c *Client) Monitor() *ratelimit.UsageMonitor {
	return c.monitor
}

func (c *Client) endpointURL(path string) string {
	return c.apiRoot + "/" + strings.TrimLeft(path, "/")
}

// call describes one logical provider request.
type call struct {
	endpoint string
	method   string
	url      string
	query    url.Values
	form     url.Values
	resource string
}

// do runs the call under the retry policy and decodes the JSON body into out.
func (c *Client) do(ctx context.Context, rc call, out any) error {
	ctx, span := c.tracer.Start(ctx, "provider."+rc.endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.endpoint", rc.endpoint),
			attribute.String("http.request.method", rc.method),
		),
	)
	defer span.End()

	var (
		attempts   int
		lastStatus int
	)
	op := func(attempt int) error {
		attempts = attempt
		if _, err := c.monitor.CheckAndThrottle(ctx, rc.resource); err != nil {
			return Permanent(err)
		}

		status, body, err := c.send(ctx, rc)
		lastStatus = 0
		if err == nil {
			lastStatus = status
		}
		switch {
		case err != nil:
			if retryableTransportError(ctx, err) {
				c.metrics.IncProviderRequest(rc.endpoint, metrics.OutcomeRetryable)
				return err
			}
			c.metrics.IncProviderRequest(rc.endpoint, metrics.OutcomeError)
			return Permanent(err)
		case status >= 200 && status < 300:
			if out == nil {
				c.metrics.IncProviderRequest(rc.endpoint, metrics.OutcomeSuccess)
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				c.metrics.IncProviderRequest(rc.endpoint, metrics.OutcomeError)
				return Permanent(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
			}
			c.metrics.IncProviderRequest(rc.endpoint, metrics.OutcomeSuccess)
			return nil
		case retryableStatus(status):
			c.metrics.IncProviderRequest(rc.endpoint, metrics.OutcomeRetryable)
			return &statusError{code: status, message: errorMessage(body)}
		default:
			c.metrics.IncProviderRequest(rc.endpoint, metrics.OutcomeRejected)
			return Permanent(&statusError{code: status, message: errorMessage(body)})
		}
	}

	notify := func(err error, wait time.Duration) {
		c.metrics.IncProviderRetry(rc.endpoint)
		c.log.Warn("provider call failed, retrying",
			zap.String("endpoint", rc.endpoint),
			zap.String("resource", rc.resource),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := c.policy.Do(ctx, op, notify)
	span.SetAttributes(
		attribute.Int("provider.attempts", attempts),
		attribute.Int("http.response.status_code", lastStatus),
	)
	if err == nil {
		return nil
	}

	apiErr := &APIError{
		Endpoint:   rc.endpoint,
		StatusCode: lastStatus,
		Attempts:   attempts,
		Err:        err,
	}
	var se *statusError
	if errors.As(err, &se) {
		apiErr.StatusCode = se.code
		apiErr.Message = se.message
		apiErr.Retryable = retryableStatus(se.code)
		apiErr.Err = nil
	} else if retryableTransportError(ctx, err) {
		apiErr.Retryable = true
	}
	span.RecordError(apiErr)
	span.SetStatus(codes.Error, apiErr.Error())
	return apiErr
}

// send performs a single HTTP exchange and hands the headers to the monitor.
func (c *Client) send(ctx context.Context, rc call) (int, []byte, error) {
	target := rc.url
	if len(rc.query) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		q := u.Query()
		for k, vs := range rc.query {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	var body io.Reader
	if rc.form != nil {
		body = strings.NewReader(rc.form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, rc.method, target, body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if rc.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	c.monitor.Parse(resp.Header, rc.resource)

	var reader io.Reader = resp.Body
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reader = io.LimitReader(resp.Body, maxErrorBody)
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, payload, nil
}

func errorMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	return gjson.GetBytes(body, "error.message").String()
}
