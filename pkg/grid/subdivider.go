package grid

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/gridscan/pkg/geo"
	"github.com/Sternrassler/gridscan/pkg/ratelimit"
)

// Subdivider splits dense cells into quadrants until they fall under the
// threshold or reach the depth cap.
type Subdivider struct {
	fetcher   Fetcher
	threshold int
	maxDepth  int
	pacer     *ratelimit.Pacer
	sinks     []Sink
	logger    zerolog.Logger
}

// NewSubdivider creates a subdivider using the threshold and depth cap of cfg.
func NewSubdivider(fetcher Fetcher, cfg Config, opts ...Option) *Subdivider {
	o := buildOptions(opts)
	return &Subdivider{
		fetcher:   fetcher,
		threshold: cfg.Threshold,
		maxDepth:  cfg.MaxDepth,
		pacer:     o.pacer,
		sinks:     o.sinks,
		logger:    o.logger,
	}
}

// Resolve covers a cell already known to be dense with leaves. The four
// quadrants are fetched NW, NE, SW, SE; a quadrant whose complete fetch
// still exceeds the threshold is split again while its depth is below the
// cap. Leaves come back in pre-order, each also passed to the sinks.
//
// A cell already at the depth cap cannot be split: it is fetched and
// returned as the only leaf.
//
// The returned error is non-nil only when a sink fails or ctx ends; the
// leaves resolved up to that point are returned with it.
func (s *Subdivider) Resolve(ctx context.Context, cell geo.Cell) ([]Leaf, error) {
	if cell.Depth >= s.maxDepth {
		leaf := Leaf{Cell: cell, Outcome: s.fetcher.Fetch(ctx, cell.BBox)}
		if err := s.emit(ctx, leaf); err != nil {
			return []Leaf{leaf}, err
		}
		return []Leaf{leaf}, s.pacer.Wait(ctx, ratelimit.ReasonCell)
	}
	return s.subdivide(ctx, cell)
}

func (s *Subdivider) subdivide(ctx context.Context, cell geo.Cell) ([]Leaf, error) {
	s.split(cell)

	var leaves []Leaf
	stack := pushChildren(make([]geo.Cell, 0, 4*(s.maxDepth-cell.Depth)), cell)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return leaves, err
		}
		q := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		logger := s.logger.With().
			Str("bbox", q.BBox.QueryString()).
			Int("depth", q.Depth).
			Logger()

		if !q.BBox.Valid() {
			cellsTotal.WithLabelValues("skipped").Inc()
			logger.Debug().Msg("Skipping degenerate quadrant")
			continue
		}

		cellsTotal.WithLabelValues("quadrant").Inc()
		out := s.fetcher.Fetch(ctx, q.BBox)

		if out.Complete() && out.Count() > s.threshold && q.Depth < s.maxDepth {
			logger.Info().
				Int("records", out.Count()).
				Int("threshold", s.threshold).
				Msg("Quadrant exceeds threshold, subdividing")
			s.split(q)
			stack = pushChildren(stack, q)
		} else {
			leaf := Leaf{Cell: q, Outcome: out}
			leaves = append(leaves, leaf)
			if err := s.emit(ctx, leaf); err != nil {
				return leaves, err
			}
		}

		if err := s.pacer.Wait(ctx, ratelimit.ReasonCell); err != nil {
			return leaves, err
		}
	}
	return leaves, nil
}

func (s *Subdivider) split(cell geo.Cell) {
	subdivisionsTotal.WithLabelValues(strconv.Itoa(cell.Depth)).Inc()
}

// emit logs the leaf and hands it to every sink.
func (s *Subdivider) emit(ctx context.Context, leaf Leaf) error {
	cellsTotal.WithLabelValues("leaf").Inc()

	event := s.logger.Info()
	if !leaf.Outcome.Complete() {
		event = s.logger.Warn().Err(leaf.Outcome.Err)
	}
	event.
		Str("bbox", leaf.Cell.BBox.QueryString()).
		Int("depth", leaf.Cell.Depth).
		Int("records", leaf.Outcome.Count()).
		Int("pages", leaf.Outcome.Pages).
		Str("status", string(leaf.Outcome.Status)).
		Bool("capped", leaf.Dense(s.threshold)).
		Msg("Leaf resolved")

	for _, sink := range s.sinks {
		if err := sink(ctx, leaf); err != nil {
			return err
		}
	}
	return nil
}

// pushChildren pushes the quadrants of cell so that NW is popped first.
func pushChildren(stack []geo.Cell, cell geo.Cell) []geo.Cell {
	children := cell.Children()
	for i := len(children) - 1; i >= 0; i-- {
		stack = append(stack, children[i])
	}
	return stack
}
