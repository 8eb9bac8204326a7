package grid

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/gridscan/pkg/geo"
	"github.com/Sternrassler/gridscan/pkg/pagination"
	"github.com/Sternrassler/gridscan/pkg/ratelimit"
)

// ErrStop is returned by a Sink to end a scan after the current cell.
var ErrStop = errors.New("scan stopped")

// ContiguousUS is the default scan region.
var ContiguousUS = geo.BoundingBox{
	LatMin: 24.396308,
	LatMax: 49.384358,
	LngMin: -125.0,
	LngMax: -66.93457,
}

// Config holds the scan parameters. It is passed by value and never mutated.
type Config struct {
	// Region is the area covered by the lattice.
	Region geo.BoundingBox

	// LatStep and LngStep are the top-level cell size in degrees.
	LatStep float64
	LngStep float64

	// Threshold is the record count above which a cell is subdivided.
	Threshold int

	// MaxDepth caps subdivision; no cell deeper than MaxDepth is fetched.
	MaxDepth int
}

// DefaultConfig returns the contiguous US at 0.1 degree steps, splitting
// cells above 350 records at most twice.
func DefaultConfig() Config {
	return Config{
		Region:    ContiguousUS,
		LatStep:   0.1,
		LngStep:   0.1,
		Threshold: 350,
		MaxDepth:  2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.Region.Valid() {
		return fmt.Errorf("region %s has no positive extent", c.Region)
	}
	if c.LatStep <= 0 || c.LngStep <= 0 {
		return fmt.Errorf("steps must be > 0 (lat=%v, lng=%v)", c.LatStep, c.LngStep)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must be >= 0 (got %d)", c.Threshold)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must be >= 0 (got %d)", c.MaxDepth)
	}
	return nil
}

// Fetcher retrieves every page of one bbox. *pagination.CellFetcher
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, bbox geo.BoundingBox) pagination.FetchOutcome
}

// Leaf is a cell accepted as final together with its fetch outcome.
type Leaf struct {
	Cell    geo.Cell
	Outcome pagination.FetchOutcome
}

// Dense reports whether the leaf still exceeds threshold. Such leaves are
// the result of the depth cap.
func (l Leaf) Dense(threshold int) bool {
	return l.Outcome.Count() > threshold
}

// CellReport is the result of one top-level lattice cell.
type CellReport struct {
	// Index is the 1-based position of the cell in scan order.
	Index int

	// Cell is the top-level cell (depth 0).
	Cell geo.Cell

	// Leaves holds the cell's own outcome, or the outcomes of its
	// quadrants in NW, NE, SW, SE pre-order when it was subdivided.
	Leaves []Leaf

	// Subdivided reports whether the top-level fetch exceeded the threshold.
	Subdivided bool
}

// Records returns the total number of records across leaves, including
// boundary duplicates.
func (r CellReport) Records() int {
	n := 0
	for _, l := range r.Leaves {
		n += l.Outcome.Count()
	}
	return n
}

// Sink receives every leaf as soon as it is resolved. Cells that were
// split are not delivered; their records reach the sink through their
// quadrants. Returning ErrStop ends the scan before the next cell is
// fetched; any other error ends it too and is reported by Walker.Err.
type Sink func(ctx context.Context, leaf Leaf) error

type options struct {
	logger zerolog.Logger
	pacer  *ratelimit.Pacer
	sinks  []Sink
}

// Option configures a Subdivider or Walker.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPacer sets the pacer used for the inter-cell wait.
func WithPacer(p *ratelimit.Pacer) Option {
	return func(o *options) { o.pacer = p }
}

// WithSink adds a leaf sink. Sinks run in registration order.
func WithSink(s Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
