package embed

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrRateLimited means the provider answered 429.
	ErrRateLimited = errors.New("embed: rate limited")
	// ErrRejected means the request itself was refused (4xx) or the response
	// did not match the request. Retrying the same input will not help.
	ErrRejected = errors.New("embed: request rejected")
	// ErrUnavailable covers 5xx, transport errors and timeouts.
	ErrUnavailable = errors.New("embed: provider unavailable")
)

// APIError is a failed embedding call. It unwraps to one of the sentinels.
type APIError struct {
	Status int
	Body   string
	Err    error

	kind       error
	retryAfter time.Duration
}

func (e *APIError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%v: status %d: %s", e.kind, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%v: status %d", e.kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.kind, e.Err)
	default:
		return e.kind.Error()
	}
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.kind, e.Err}
	}
	return []error{e.kind}
}

// RetryAfter returns the server-requested wait of a 429 response.
func (e *APIError) RetryAfter() (time.Duration, bool) {
	if e.kind != ErrRateLimited {
		return 0, false
	}
	return e.retryAfter, true
}

// statusError classifies a non-2xx response.
func statusError(resp *http.Response, body string, defaultRetryAfter time.Duration) *APIError {
	e := &APIError{Status: resp.StatusCode, Body: body}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.kind = ErrRateLimited
		e.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), defaultRetryAfter)
	case resp.StatusCode == http.StatusRequestTimeout:
		e.kind = ErrUnavailable
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		e.kind = ErrRejected
	default:
		e.kind = ErrUnavailable
	}
	return e
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return def
}

func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
