package grid

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/gridscan/pkg/geo"
	"github.com/Sternrassler/gridscan/pkg/ratelimit"
)

// Walker scans the lattice of a region cell by cell.
type Walker struct {
	fetcher Fetcher
	sub     *Subdivider
	config  Config
	pacer   *ratelimit.Pacer
	logger  zerolog.Logger

	started bool
	stopped bool
	err     error
	summary Summary
}

// NewWalker creates a walker for cfg. Options apply to the walker and to
// the subdivider it delegates dense cells to.
func NewWalker(fetcher Fetcher, cfg Config, opts ...Option) (*Walker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid config: %w", err)
	}
	o := buildOptions(opts)
	return &Walker{
		fetcher: fetcher,
		sub:     NewSubdivider(fetcher, cfg, opts...),
		config:  cfg,
		pacer:   o.pacer,
		logger:  o.logger,
	}, nil
}

// Config returns the walker configuration.
func (w *Walker) Config() Config {
	return w.config
}

// Scan returns the lazy sequence of per-cell reports in lattice order.
// Each step fetches one top-level cell and, when it exceeds the threshold,
// its quadrants. The sequence can be consumed once; later calls yield
// nothing.
//
// The scan ends early when ctx is done, when a sink fails, or when the
// consumer stops ranging. A cell interrupted that way is still yielded
// with the leaves resolved so far.
func (w *Walker) Scan(ctx context.Context) iter.Seq[CellReport] {
	return func(yield func(CellReport) bool) {
		if w.started {
			w.logger.Warn().Msg("Scan already consumed")
			return
		}
		w.started = true

		start := time.Now()
		w.logger.Info().
			Str("region", w.config.Region.QueryString()).
			Float64("lat_step", w.config.LatStep).
			Float64("lng_step", w.config.LngStep).
			Int("threshold", w.config.Threshold).
			Int("max_depth", w.config.MaxDepth).
			Msg("Starting grid scan")
		defer func() {
			w.logger.Info().
				Int("cells", w.summary.Cells).
				Int("leaves", w.summary.Leaves).
				Int("records", w.summary.Records).
				Int("aborted", w.summary.Aborted).
				Dur("duration", time.Since(start)).
				Msg("Grid scan finished")
		}()

		index := 0
		for bbox := range Lattice(w.config.Region, w.config.LatStep, w.config.LngStep) {
			if err := ctx.Err(); err != nil {
				w.stop(err)
				return
			}
			index++

			if !bbox.Valid() {
				cellsTotal.WithLabelValues("skipped").Inc()
				w.summary.Skipped++
				w.logger.Debug().Int("cell", index).Str("bbox", bbox.QueryString()).Msg("Skipping degenerate cell")
				continue
			}

			report, err := w.scanCell(ctx, index, bbox)
			w.summary.Add(report, w.config.Threshold)

			if !yield(report) {
				return
			}
			if err != nil {
				w.stop(err)
				return
			}
		}
	}
}

func (w *Walker) scanCell(ctx context.Context, index int, bbox geo.BoundingBox) (CellReport, error) {
	cell := geo.Cell{BBox: bbox, Depth: 0}
	report := CellReport{Index: index, Cell: cell}
	cellsTotal.WithLabelValues("top").Inc()

	out := w.fetcher.Fetch(ctx, bbox)
	w.logger.Debug().
		Int("cell", index).
		Str("bbox", bbox.QueryString()).
		Int("records", out.Count()).
		Str("status", string(out.Status)).
		Msg("Cell fetched")

	if out.Complete() && out.Count() > w.config.Threshold && cell.Depth < w.config.MaxDepth {
		w.logger.Info().
			Int("cell", index).
			Str("bbox", bbox.QueryString()).
			Int("records", out.Count()).
			Int("threshold", w.config.Threshold).
			Msg("Cell exceeds threshold, subdividing")
		report.Subdivided = true
		leaves, err := w.sub.subdivide(ctx, cell)
		report.Leaves = leaves
		return report, err
	}

	leaf := Leaf{Cell: cell, Outcome: out}
	report.Leaves = []Leaf{leaf}
	if err := w.sub.emit(ctx, leaf); err != nil {
		return report, err
	}
	return report, w.pacer.Wait(ctx, ratelimit.ReasonCell)
}

func (w *Walker) stop(err error) {
	if errors.Is(err, ErrStop) {
		w.stopped = true
		w.logger.Info().Msg("Scan stopped by sink")
		return
	}
	w.err = err
	w.logger.Warn().Err(err).Msg("Scan ended early")
}

// Err returns the error that ended the scan early, or nil when the scan
// ran to completion, was stopped with ErrStop, or was abandoned by the
// consumer.
func (w *Walker) Err() error {
	return w.err
}

// Stopped reports whether a sink ended the scan with ErrStop.
func (w *Walker) Stopped() bool {
	return w.stopped
}

// Summary returns the totals of the cells scanned so far.
func (w *Walker) Summary() Summary {
	return w.summary
}
