package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridscan_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridscan_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// RetryPolicy decides whether a failed page request is attempted again.
// Delays are fixed; there is no backoff growth or jitter.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// Delay is the wait between attempts.
	Delay time.Duration

	// Logger receives retry and exhaustion events. Zero value logs nothing.
	Logger zerolog.Logger
}

// DefaultRetryPolicy returns the default policy: 3 attempts, 5s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
		Logger:      zerolog.Nop(),
	}
}

// Classify maps err onto Retryable or Fatal.
func (p RetryPolicy) Classify(err error) Classification {
	return Classify(err)
}

// ShouldRetry reports whether another attempt follows a failed attempt
// number attempt (1-based).
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return ShouldRetry(attempt, p.MaxAttempts)
}

// ShouldRetry reports whether attempt (1-based) leaves room for another
// attempt under maxAttempts.
func ShouldRetry(attempt, maxAttempts int) bool {
	return attempt < maxAttempts
}

// Do runs op until it succeeds, fails fatally, or exhausts MaxAttempts.
// op receives the 1-based attempt number.
//
// A fatal error is returned as-is after the first occurrence. Exhaustion
// returns an error wrapping both ErrRetryExhausted and the last failure.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				p.Logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err
		kind := string(KindOf(err))

		if p.Classify(err) == Fatal {
			return err
		}

		if !ShouldRetry(attempt, maxAttempts) {
			break
		}

		retriesTotal.WithLabelValues(kind).Inc()
		p.Logger.Warn().
			Err(err).
			Str("error_kind", kind).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("delay", p.Delay).
			Msg("Retrying request after delay")

		if err := sleepCtx(ctx, p.Delay); err != nil {
			p.Logger.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry delay")
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	kind := string(KindOf(lastErr))
	retryExhaustedTotal.WithLabelValues(kind).Inc()
	p.Logger.Warn().
		Str("error_kind", kind).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}

// sleepCtx blocks for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
