// Package writequeue serializes all outbound writes to the work-management
// platform through a single priority-ordered, rate-limited processing loop.
package writequeue

import (
	"context"
	"errors"
	"net"
	"time"

	"leadrouting_backend/internal/board"
)

// TaskError is the structured failure attached to an exhausted or fatal
// task result.
type TaskError struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func (e *TaskError) Error() string { return e.Message }

// Error codes for task failures.
const (
	CodeRateLimited = "RATE_LIMITED"
	CodeClientError = "CLIENT_ERROR"
	CodeServerError = "SERVER_ERROR"
	CodeNetwork     = "NETWORK_ERROR"
	CodeTimeout     = "TIMEOUT"
	CodeShutdown    = "SHUTDOWN"
)

// classify maps a call error to a TaskError plus an optional server-provided
// retry-after hint. Non-429 4xx responses are fatal; 429, 5xx, network and
// timeout errors are retryable.
func classify(err error) (*TaskError, time.Duration) {
	var apiErr *board.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &TaskError{Message: err.Error(), Code: CodeRateLimited, Retryable: true}, apiErr.RetryAfter
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return &TaskError{Message: err.Error(), Code: CodeClientError, Retryable: false}, 0
		default:
			return &TaskError{Message: err.Error(), Code: CodeServerError, Retryable: true}, 0
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TaskError{Message: err.Error(), Code: CodeTimeout, Retryable: true}, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TaskError{Message: err.Error(), Code: CodeTimeout, Retryable: true}, 0
	}

	// Transport-level failures without a response are network errors.
	return &TaskError{Message: err.Error(), Code: CodeNetwork, Retryable: true}, 0
}

// RetryPolicy is an explicit, clock-free backoff schedule: attempt counting
// and delay computation live here so tests never need real timers.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the platform client guidance: five attempts,
// half-second base, doubling, capped at thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
	}
}

// NextDelay returns the backoff before the given retry. attempt is the
// number of attempts already made (1 after the first failure).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
