package provider

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidResponse = errors.New("invalid_provider_response")
	ErrMissingToken    = errors.New("missing_access_token")
	ErrInvalidRequest  = errors.New("invalid_provider_request")
)

// APIError is returned for every failed provider call once retries are spent
// or the provider rejected the request outright.
type APIError struct {
	Endpoint   string
	StatusCode int
	Attempts   int
	Retryable  bool
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("provider %s failed after %d attempt(s)", e.Endpoint, e.Attempts)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsAPIError reports whether err carries an APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// StatusCode returns the provider HTTP status wrapped in err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// statusError carries a non-2xx response through the retry loop.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.message)
}
