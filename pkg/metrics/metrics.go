// Package metrics exposes the scanner's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, pagination,
// grid, cache, ratelimit) to maintain modularity and avoid circular
// dependencies; this package serves them and documents them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the scanner.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// NewRouter returns a router serving /metrics and /healthz.
func NewRouter(logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("HTTP request")
			next.ServeHTTP(w, r)
		})
	}
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		logger.Info().Msg("Metrics server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - gridscan_requests_total{status} (Counter): Search requests by HTTP status or "network_error"
//   - gridscan_request_duration_seconds (Histogram): Search request duration
//   - gridscan_errors_total{kind} (Counter): Failed requests by kind (transport, http, malformed, unclassified)
//
// Retry Metrics (pkg/client):
//   - gridscan_retries_total{kind} (Counter): Retry attempts by error kind
//   - gridscan_retry_exhausted_total{kind} (Counter): Page requests that exhausted all attempts
//
// Pagination Metrics (pkg/pagination):
//   - gridscan_fetch_outcomes_total{status} (Counter): Bbox fetches by status (complete, partial_aborted)
//   - gridscan_pages_fetched_total (Counter): Pages successfully retrieved
//
// Grid Metrics (pkg/grid):
//   - gridscan_cells_total{kind} (Counter): Cells by kind (top, quadrant, leaf, skipped)
//   - gridscan_subdivisions_total{depth} (Counter): Subdivisions by depth of the split cell
//
// Cache Metrics (pkg/cache):
//   - gridscan_cache_hits_total{layer} (Counter): Page cache hits by layer (memory, redis)
//   - gridscan_cache_misses_total (Counter): Page cache misses across all layers
//   - gridscan_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pacing Metrics (pkg/ratelimit):
//   - gridscan_wait_seconds_total{reason} (Counter): Time spent in courtesy waits (page, cell)
//   - gridscan_waits_interrupted_total{reason} (Counter): Waits cut short by cancellation
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(gridscan_cache_hits_total[5m])) /
//   (sum(rate(gridscan_cache_hits_total[5m])) + rate(gridscan_cache_misses_total[5m]))
//
//   # Share of truncated bbox fetches
//   rate(gridscan_fetch_outcomes_total{status="partial_aborted"}[15m]) /
//   sum(rate(gridscan_fetch_outcomes_total[15m]))
//
//   # Request Error Rate
//   rate(gridscan_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(gridscan_request_duration_seconds_bucket[5m]))
