// Command gridscan walks a region lattice against the search API and stores
// every resolved leaf.
//
// Configuration is read from the environment; see internal/config.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/gridscan/internal/config"
	"github.com/Sternrassler/gridscan/internal/store"
	"github.com/Sternrassler/gridscan/pkg/cache"
	"github.com/Sternrassler/gridscan/pkg/client"
	"github.com/Sternrassler/gridscan/pkg/grid"
	"github.com/Sternrassler/gridscan/pkg/logging"
	"github.com/Sternrassler/gridscan/pkg/metrics"
	"github.com/Sternrassler/gridscan/pkg/pagination"
	"github.com/Sternrassler/gridscan/pkg/ratelimit"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.Setup(cfg.Logging())

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var in io.Reader
	if cfg.Pause {
		in = os.Stdin
	}

	if _, err := run(ctx, cfg, logger, in, os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("Scan failed")
	}
}

// run wires the components for one scan and drives it to the end. A nil in
// disables the confirmation prompt.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, in io.Reader, out io.Writer) (grid.Summary, error) {
	scanID := uuid.New().String()

	var st *store.Store
	if cfg.StorePath != "" {
		var err error
		st, err = store.Open(cfg.StorePath)
		if err != nil {
			return grid.Summary{}, fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		scanID, err = st.BeginScan(ctx, cfg.Grid())
		if err != nil {
			return grid.Summary{}, fmt.Errorf("begin scan: %w", err)
		}
	}
	logger = logging.WithScan(logger, scanID)

	pageCache, closeCache, err := newPageCache(ctx, cfg, logger)
	if err != nil {
		return grid.Summary{}, err
	}
	defer closeCache()

	searchClient, err := client.New(cfg.Client(pageCache))
	if err != nil {
		return grid.Summary{}, fmt.Errorf("create client: %w", err)
	}
	searchClient.SetLogger(logger.With().Str("component", "search-client").Logger())

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, metrics.NewRouter(logger), logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	pacer := ratelimit.NewPacer(cfg.Delays(), ratelimit.WithLogger(logger))
	fetcher := pagination.NewCellFetcher(searchClient, cfg.Pagination(pacer, logger),
		pagination.WithLogger(logger),
		pagination.WithPageHook(func(ev pagination.PageEvent) {
			logger.Debug().
				Str("bbox", ev.BBox.QueryString()).
				Int("page", ev.Page).
				Int("total_pages", ev.TotalPages).
				Int("records", ev.Records).
				Bool("cached", ev.Cached).
				Msg("Page fetched")
		}),
	)

	opts := []grid.Option{grid.WithLogger(logger), grid.WithPacer(pacer)}
	if st != nil {
		opts = append(opts, grid.WithSink(storeSink(st, scanID, logger)))
	}
	if in != nil {
		opts = append(opts, grid.WithSink(promptSink(in, out)))
	}

	walker, err := grid.NewWalker(fetcher, cfg.Grid(), opts...)
	if err != nil {
		return grid.Summary{}, err
	}

	for report := range walker.Scan(ctx) {
		logger.Info().
			Int("cell", report.Index).
			Str("bbox", report.Cell.BBox.QueryString()).
			Int("leaves", len(report.Leaves)).
			Int("records", report.Records()).
			Bool("subdivided", report.Subdivided).
			Msg("Cell done")
	}

	summary := walker.Summary()
	scanErr := walker.Err()
	status := store.StatusCompleted
	switch {
	case errors.Is(scanErr, context.Canceled):
		status = store.StatusStopped
		scanErr = nil
	case scanErr != nil:
		status = store.StatusFailed
	case walker.Stopped():
		status = store.StatusStopped
	}

	logger.Info().
		Int("cells", summary.Cells).
		Int("skipped", summary.Skipped).
		Int("subdivided", summary.Subdivided).
		Int("leaves", summary.Leaves).
		Int("records", summary.Records).
		Int("aborted", summary.Aborted).
		Int("capped", summary.Capped).
		Str("status", status).
		Msg("Scan summary")

	if st != nil {
		// The scan ctx may already be cancelled; the final row is written regardless.
		if err := st.FinishScan(context.WithoutCancel(ctx), scanID, summary, status); err != nil {
			logger.Error().Err(err).Msg("Failed to finish scan record")
		}
	}
	return summary, scanErr
}

// newPageCache builds the memory layer and, when REDIS_ADDR is set, a Redis
// layer below it. The returned func releases the Redis client.
func newPageCache(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*cache.PageCache, func(), error) {
	noop := func() {}
	var layers []cache.Layer

	if cfg.CacheMemorySize > 0 {
		mem, err := cache.NewMemoryLayer(cfg.CacheMemorySize)
		if err != nil {
			return nil, noop, fmt.Errorf("create memory cache: %w", err)
		}
		layers = append(layers, mem)
	}

	closeFn := noop
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, noop, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		layers = append(layers, cache.NewRedisLayer(rdb))
		closeFn = func() { rdb.Close() }
	}

	if len(layers) == 0 {
		return nil, closeFn, nil
	}
	return cache.NewPageCache(layers...).WithLogger(logger), closeFn, nil
}

func storeSink(st *store.Store, scanID string, logger zerolog.Logger) grid.Sink {
	save := st.Sink(scanID)
	return func(ctx context.Context, leaf grid.Leaf) error {
		if err := save(ctx, leaf); err != nil {
			logger.Error().Err(err).Str("bbox", leaf.Cell.BBox.QueryString()).Msg("Failed to store leaf")
			return err
		}
		return nil
	}
}

// promptSink asks for confirmation after every leaf that returned records.
// Answering q or exit, or closing the input, stops the scan.
func promptSink(in io.Reader, out io.Writer) grid.Sink {
	r := bufio.NewReader(in)
	return func(_ context.Context, leaf grid.Leaf) error {
		if leaf.Outcome.Count() == 0 {
			return nil
		}
		fmt.Fprintf(out, "%s depth %d: %d records (%s). Enter to continue, q to quit: ",
			leaf.Cell.BBox, leaf.Cell.Depth, leaf.Outcome.Count(), leaf.Outcome.Status)

		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return grid.ErrStop
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "q", "quit", "exit":
			return grid.ErrStop
		}
		return nil
	}
}
