// Package retry wraps an LLM service with attempt retries, exponential
// backoff and request pacing. Stage code never retries itself: every
// provider service is wrapped here exactly once by the factory.
package retry

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
	"github.com/strata-qda/strata-cli/internal/logger"
)

// Ensure Service implements the interface.
var _ driven.LLMService = (*Service)(nil)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 2 * time.Second
	DefaultMaxBackoff  = 30 * time.Second
)

// Config holds the retry policy.
type Config struct {
	// MaxAttempts is the total number of tries per call (default: 3).
	MaxAttempts int

	// BaseBackoff is the delay before the first retry; it doubles per
	// attempt (default: 2s).
	BaseBackoff time.Duration

	// MaxBackoff caps the doubling (default: 30s).
	MaxBackoff time.Duration

	// RequestsPerSecond paces outgoing calls across all workers.
	// Zero or negative disables pacing.
	RequestsPerSecond float64
}

// Service decorates an LLMService with the retry policy. Only errors the
// domain taxonomy marks retryable are retried; configuration errors and
// malformed responses fail immediately.
type Service struct {
	inner   driven.LLMService
	cfg     Config
	limiter *rate.Limiter
}

// Wrap decorates the given service.
func Wrap(inner driven.LLMService, cfg Config) *Service {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Service{inner: inner, cfg: cfg, limiter: limiter}
}

// Chat calls the wrapped service, retrying transient failures.
func (s *Service) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		reply, err := s.inner.Chat(ctx, messages, opts)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) || attempt == s.cfg.MaxAttempts {
			break
		}

		delay := s.backoff(attempt)
		logger.Warn("Model call failed (attempt %d/%d), retrying in %s: %v",
			attempt, s.cfg.MaxAttempts, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// backoff returns the delay before the next attempt: base doubled per
// completed attempt, capped.
func (s *Service) backoff(attempt int) time.Duration {
	delay := s.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	if delay > s.cfg.MaxBackoff {
		return s.cfg.MaxBackoff
	}
	return delay
}

// ModelName returns the wrapped service's model identifier.
func (s *Service) ModelName() string {
	return s.inner.ModelName()
}

// Ping passes through without retries; a startup check should fail fast.
func (s *Service) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close releases the wrapped service's resources.
func (s *Service) Close() error {
	return s.inner.Close()
}
