// Package ratelimit paces outbound search requests with fixed courtesy delays.
//
// The upstream publishes no rate limit headers, so the scanner throttles
// itself: a fixed wait between the pages of one bbox and a fixed wait
// between cells. Waits block the caller; nothing else progresses meanwhile.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for pacing.
var (
	waitSecondsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridscan_wait_seconds_total",
		Help: "Total time spent in courtesy waits by reason",
	}, []string{"reason"})

	waitsInterruptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridscan_waits_interrupted_total",
		Help: "Courtesy waits cut short by context cancellation",
	}, []string{"reason"})
)

// Reason names the kind of wait.
type Reason string

const (
	// ReasonPage is the wait before each page after the first.
	ReasonPage Reason = "page"

	// ReasonCell is the wait after each fetched cell.
	ReasonCell Reason = "cell"
)

// Delays holds the fixed courtesy delays.
type Delays struct {
	// InterPage separates consecutive page requests of one bbox.
	InterPage time.Duration

	// InterCell follows every cell fetch.
	InterCell time.Duration
}

// DefaultDelays returns 500ms between pages and between cells.
func DefaultDelays() Delays {
	return Delays{
		InterPage: 500 * time.Millisecond,
		InterCell: 500 * time.Millisecond,
	}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer performs the courtesy waits. A nil *Pacer never waits.
type Pacer struct {
	delays Delays
	sleep  SleepFunc
	logger zerolog.Logger
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithLogger sets the pacer logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pacer) { p.logger = logger }
}

// WithSleep replaces the timer-based sleep (for testing).
func WithSleep(fn SleepFunc) Option {
	return func(p *Pacer) { p.sleep = fn }
}

// NewPacer creates a pacer for the given delays.
func NewPacer(delays Delays, opts ...Option) *Pacer {
	p := &Pacer{
		delays: delays,
		sleep:  Sleep,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Delays returns the configured delays.
func (p *Pacer) Delays() Delays {
	if p == nil {
		return Delays{}
	}
	return p.delays
}

// Delay returns the wait duration for reason.
func (p *Pacer) Delay(reason Reason) time.Duration {
	if p == nil {
		return 0
	}
	switch reason {
	case ReasonPage:
		return p.delays.InterPage
	case ReasonCell:
		return p.delays.InterCell
	default:
		return 0
	}
}

// Wait blocks for the delay belonging to reason. It returns ctx.Err() when
// the context ends first.
func (p *Pacer) Wait(ctx context.Context, reason Reason) error {
	d := p.Delay(reason)
	if d <= 0 {
		return ctx.Err()
	}

	p.logger.Debug().
		Str("reason", string(reason)).
		Dur("delay", d).
		Msg("Courtesy wait")

	start := time.Now()
	err := p.sleep(ctx, d)
	waitSecondsTotal.WithLabelValues(string(reason)).Add(time.Since(start).Seconds())
	if err != nil {
		waitsInterruptedTotal.WithLabelValues(string(reason)).Inc()
		return err
	}
	return nil
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
