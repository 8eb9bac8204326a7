package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/gridscan/pkg/client"
	"github.com/Sternrassler/gridscan/pkg/geo"
	"github.com/Sternrassler/gridscan/pkg/ratelimit"
)

// Prometheus metrics for paginated fetches.
var (
	fetchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridscan_fetch_outcomes_total",
		Help: "Total bbox fetches by terminal status",
	}, []string{"status"})

	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridscan_pages_fetched_total",
		Help: "Total pages successfully retrieved",
	})
)

// ErrInvalidBBox is reported for boxes with zero or negative extent.
var ErrInvalidBBox = errors.New("invalid bounding box")

// PageFetcher performs one page request without retrying.
// *client.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, bbox geo.BoundingBox, page int) (client.PageResult, error)
}

// Status is the terminal state of one bbox fetch.
type Status string

const (
	// StatusComplete means every declared page was retrieved.
	StatusComplete Status = "complete"

	// StatusPartialAborted means retrieval stopped early; Records holds the
	// pages collected before the stop.
	StatusPartialAborted Status = "partial_aborted"
)

// FetchOutcome is the result of fetching all pages of one bbox.
type FetchOutcome struct {
	BBox    geo.BoundingBox
	Records []client.Record
	Status  Status

	// Pages is the number of pages retrieved.
	Pages int

	// TotalPages is the count declared by page 1, or 0 if page 1 failed.
	TotalPages int

	// LastURL is the request URL of the last retrieved page.
	LastURL string

	// Err is the stop reason of a partial abort.
	Err error
}

// Count returns the number of records collected.
func (o FetchOutcome) Count() int {
	return len(o.Records)
}

// Complete reports whether all declared pages were retrieved.
func (o FetchOutcome) Complete() bool {
	return o.Status == StatusComplete
}

// PageEvent describes one retrieved page.
type PageEvent struct {
	BBox       geo.BoundingBox
	Page       int
	TotalPages int
	Records    int
	Cached     bool
	URL        string
}

// Config holds cell fetcher configuration.
type Config struct {
	// Retry is applied to every page request.
	Retry client.RetryPolicy

	// Pacer provides the inter-page wait. Nil disables waiting.
	Pacer *ratelimit.Pacer
}

// DefaultConfig returns 3 attempts 5s apart and 500ms between pages.
func DefaultConfig() Config {
	return Config{
		Retry: client.DefaultRetryPolicy(),
		Pacer: ratelimit.NewPacer(ratelimit.DefaultDelays()),
	}
}

// Option configures a CellFetcher.
type Option func(*CellFetcher)

// WithLogger sets the fetcher logger. Retry events are logged through it too.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *CellFetcher) {
		f.logger = logger
		f.config.Retry.Logger = logger
	}
}

// WithPageHook registers a callback invoked after every retrieved page.
func WithPageHook(fn func(PageEvent)) Option {
	return func(f *CellFetcher) { f.onPage = fn }
}

// CellFetcher retrieves all pages of a bbox, one request at a time.
type CellFetcher struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
	onPage  func(PageEvent)
}

// NewCellFetcher creates a new cell fetcher.
func NewCellFetcher(fetcher PageFetcher, config Config, opts ...Option) *CellFetcher {
	if config.Retry.MaxAttempts < 1 {
		config.Retry.MaxAttempts = 1
	}

	f := &CellFetcher{
		fetcher: fetcher,
		config:  config,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves every declared page of bbox in ascending order.
// It never fails: errors end the walk with StatusPartialAborted.
func (f *CellFetcher) Fetch(ctx context.Context, bbox geo.BoundingBox) FetchOutcome {
	start := time.Now()
	out := FetchOutcome{BBox: bbox, Status: StatusComplete}
	logger := f.logger.With().Str("bbox", bbox.QueryString()).Logger()

	if !bbox.Valid() {
		return f.abort(logger, out, ErrInvalidBBox)
	}

	first, err := f.fetchPage(ctx, bbox, 1)
	if err != nil {
		return f.abort(logger, out, fmt.Errorf("page 1: %w", err))
	}
	out.TotalPages = max(first.TotalPages, 1)
	f.accept(logger, &out, first)

	if out.TotalPages == 1 && len(first.Records) == 0 {
		logger.Debug().Msg("Empty single-page result")
		return f.finish(logger, out, start)
	}

	for page := 2; page <= out.TotalPages; page++ {
		if err := f.config.Pacer.Wait(ctx, ratelimit.ReasonPage); err != nil {
			return f.abort(logger, out, fmt.Errorf("%w: %v", client.ErrContextCancelled, err))
		}

		res, err := f.fetchPage(ctx, bbox, page)
		if err != nil {
			return f.abort(logger, out, fmt.Errorf("page %d: %w", page, err))
		}
		f.accept(logger, &out, res)
	}

	return f.finish(logger, out, start)
}

func (f *CellFetcher) fetchPage(ctx context.Context, bbox geo.BoundingBox, page int) (client.PageResult, error) {
	var result client.PageResult
	err := f.config.Retry.Do(ctx, func(ctx context.Context, _ int) error {
		res, err := f.fetcher.FetchPage(ctx, bbox, page)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

func (f *CellFetcher) accept(logger zerolog.Logger, out *FetchOutcome, res client.PageResult) {
	out.Records = append(out.Records, res.Records...)
	out.Pages++
	out.LastURL = res.URL
	pagesFetchedTotal.Inc()

	if len(res.Records) == 0 {
		logger.Debug().Int("page", res.PageNumber).Msg("Page contained no records")
	}
	logger.Debug().
		Int("page", res.PageNumber).
		Int("total_pages", out.TotalPages).
		Int("records", len(res.Records)).
		Bool("cache_hit", res.Cached).
		Msg("Page fetched")

	if f.onPage != nil {
		f.onPage(PageEvent{
			BBox:       out.BBox,
			Page:       res.PageNumber,
			TotalPages: out.TotalPages,
			Records:    len(res.Records),
			Cached:     res.Cached,
			URL:        res.URL,
		})
	}
}

func (f *CellFetcher) finish(logger zerolog.Logger, out FetchOutcome, start time.Time) FetchOutcome {
	fetchOutcomesTotal.WithLabelValues(string(StatusComplete)).Inc()
	logger.Debug().
		Int("pages", out.Pages).
		Int("records", len(out.Records)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")
	return out
}

func (f *CellFetcher) abort(logger zerolog.Logger, out FetchOutcome, err error) FetchOutcome {
	out.Status = StatusPartialAborted
	out.Err = err
	fetchOutcomesTotal.WithLabelValues(string(StatusPartialAborted)).Inc()

	event := logger.Warn()
	if client.Classify(err) == client.Fatal && !errors.Is(err, client.ErrRetryExhausted) {
		event = logger.Error()
	}
	event.Err(err).
		Str("error_class", string(client.KindOf(err))).
		Int("pages", out.Pages).
		Int("total_pages", out.TotalPages).
		Int("records", len(out.Records)).
		Msg("Fetch aborted, keeping partial results")
	return out
}
