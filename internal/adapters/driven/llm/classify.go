// Package llm holds the error classification shared by all provider
// adapters. Every adapter maps HTTP and transport failures onto the
// domain error taxonomy here, so retry policy lives in one place.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

// ClassifyStatus maps a non-200 provider response onto the domain error
// taxonomy. Rate limiting and server-side failures are retryable; auth,
// bad model ids and request errors are configuration problems that no
// retry can fix.
func ClassifyStatus(provider string, status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned 429: %s", domain.ErrRateLimited, provider, body)
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusNotFound,
		status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s returned %d: %s", domain.ErrConfiguration, provider, status, body)
	case status >= 500:
		return fmt.Errorf("%w: %s returned %d: %s", domain.ErrNetwork, provider, status, body)
	default:
		return fmt.Errorf("%w: %s returned unexpected status %d: %s", domain.ErrNetwork, provider, status, body)
	}
}

// ClassifyTransport maps a failed HTTP round trip onto the domain error
// taxonomy. Cancellation passes through untouched so callers can tell an
// aborted run from a flaky network.
func ClassifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s request deadline exceeded: %v", domain.ErrTimeout, provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s request timed out: %v", domain.ErrTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s request failed: %v", domain.ErrNetwork, provider, err)
}
