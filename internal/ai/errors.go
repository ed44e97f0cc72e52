package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// UpstreamError is returned by Gateway.Complete whenever the provider could
// not produce a reply.
type UpstreamError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion provider %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusError carries the HTTP status a provider answered with.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

var ErrEmptyReply = errors.New("provider returned an empty reply")

// retryable reports whether another attempt could succeed: rate limits,
// server-side failures and transient network errors.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 429 || se.StatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
