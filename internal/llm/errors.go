package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrUnavailable marks provider failures worth retrying: network errors,
// rate limiting and 5xx responses.
var ErrUnavailable = errors.New("provider unavailable")

// classify wraps err with ErrUnavailable when status or the error itself
// indicates a transient condition. status is 0 when unknown.
func classify(err error, status int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var netErr net.Error
	if status == 0 && (errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// IsTransient reports whether err came from a retryable provider failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
