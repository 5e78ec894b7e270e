package spotify

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var (
	// ErrFetchFailed is matched by every error that exhausted its retries.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrRateLimitExceeded is additionally matched when the last attempt
	// was answered with 429.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// APIError is a non-2xx response.
type APIError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify: HTTP %d", e.Status)
	}
	return fmt.Sprintf("spotify: HTTP %d: %s", e.Status, e.Message)
}

// FetchError reports a call that failed after all attempts.
type FetchError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: gave up after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error {
	errs := []error{ErrFetchFailed, e.Err}
	var apiErr *APIError
	if errors.As(e.Err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		errs = append(errs, ErrRateLimitExceeded)
	}
	return errs
}

// IsTransient reports whether err is worth another attempt: rate limiting,
// server errors, an expired token, or a transport failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests ||
			apiErr.Status == http.StatusUnauthorized ||
			apiErr.Status/100 == 5
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var transportErr *transportError
	return errors.As(err, &transportErr)
}

// transportError marks failures that never produced an HTTP response.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }
