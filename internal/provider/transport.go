package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// TransportConfig holds the per-attempt timeouts of the provider HTTP client.
type TransportConfig struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PoolTimeout    time.Duration
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    30 * time.Second,
		PoolTimeout:    5 * time.Second,
	}
}

// NewHTTPClient builds the plain transport. net/http has no distinct write or
// pool-acquire timeout; both are folded into the overall attempt deadline.
func NewHTTPClient(cfg TransportConfig) *http.Client {
	def := DefaultTransportConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = def.PoolTimeout
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.PoolTimeout + cfg.ConnectTimeout + cfg.WriteTimeout + cfg.ReadTimeout,
	}
}

// retryableStatus reports whether a response status is worth another attempt.
func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// retryableTransportError reports whether a transport failure (connect,
// timeout, reset) may succeed on retry. Cancellation of the caller's context
// and requests that could not be built never are.
func retryableTransportError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrInvalidRequest) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
