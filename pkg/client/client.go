// Package client provides the search API HTTP client with response caching
// and a fixed-delay retry policy.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/gridscan/pkg/cache"
	"github.com/Sternrassler/gridscan/pkg/geo"
)

// Prometheus metrics for search client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridscan_requests_total",
		Help: "Total search requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridscan_request_duration_seconds",
		Help:    "Search request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridscan_errors_total",
		Help: "Total search request errors by kind",
	}, []string{"kind"})
)

// DefaultBaseURL is the search endpoint scanned by default.
const DefaultBaseURL = "https://thedyrt.com/api/v6/locations/search-results"

// DefaultUserAgent mimics a desktop browser; the upstream rejects bare clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// FilterParams are sent with every request. All filters are left open.
var FilterParams = url.Values{
	"filter[search][drive_time]":         {"any"},
	"filter[search][air_quality]":        {"any"},
	"filter[search][electric_amperage]":  {"any"},
	"filter[search][max_vehicle_length]": {"any"},
	"filter[search][price]":              {"any"},
	"filter[search][rating]":             {"any"},
}

// Client fetches single pages from the search API.
type Client struct {
	httpClient *http.Client
	cache      *cache.PageCache
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the search endpoint
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// PageSize is the fixed number of records requested per page
	PageSize int

	// Sort is the sort mode sent upstream
	Sort string

	// RequestTimeout bounds each single HTTP request
	RequestTimeout time.Duration

	// Cache is optional; nil disables response caching
	Cache *cache.PageCache

	// CacheTTL is how long cached pages stay valid
	CacheTTL time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      DefaultUserAgent,
		PageSize:       500,
		Sort:           "recommended",
		RequestTimeout: 30 * time.Second,
		CacheTTL:       24 * time.Hour,
	}
}

// New creates a new search client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be > 0 (got %d)", cfg.PageSize)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	logger := log.With().Str("component", "search-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cache:  cfg.Cache,
		config: cfg,
		logger: logger,
	}, nil
}

// PageResult is one successfully decoded page.
type PageResult struct {
	Records    []Record
	PageNumber int
	// TotalPages is the declared page count, normalised to >= 1.
	TotalPages int
	// URL is the request URL that produced the page.
	URL string
	// Cached reports whether the page was served from cache.
	Cached bool
}

// BuildQuery returns the query parameters for one page of bbox.
func (c *Client) BuildQuery(bbox geo.BoundingBox, page int) url.Values {
	q := make(url.Values, len(FilterParams)+4)
	for k, v := range FilterParams {
		q[k] = append([]string(nil), v...)
	}
	q.Set("filter[search][bbox]", bbox.QueryString())
	if c.config.Sort != "" {
		q.Set("sort", c.config.Sort)
	}
	q.Set("page[size]", strconv.Itoa(c.config.PageSize))
	q.Set("page[number]", strconv.Itoa(page))
	return q
}

// FetchPage performs a single request for one page of bbox. It does not retry;
// callers apply a RetryPolicy. Errors are always *SearchError.
func (c *Client) FetchPage(ctx context.Context, bbox geo.BoundingBox, page int) (PageResult, error) {
	key := cache.PageKey{
		BBox:     bbox.QueryString(),
		Page:     page,
		PageSize: c.config.PageSize,
		Sort:     c.config.Sort,
		Filters:  FilterParams,
	}

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		if err == nil {
			result, decodeErr := decodePage(entry.Body, page)
			if decodeErr == nil {
				result.URL = entry.URL
				result.Cached = true
				return result, nil
			}
			c.logger.Warn().Err(decodeErr).Str("key", key.String()).Msg("Ignoring undecodable cache entry")
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
	}

	reqURL := c.config.BaseURL + "?" + c.BuildQuery(bbox, page).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return PageResult{}, c.fail(&SearchError{Kind: KindUnclassified, Message: "create request", Err: err})
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	c.logger.Debug().
		Str("bbox", key.BBox).
		Int("page", page).
		Msg("Executing search request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("network_error").Inc()
		return PageResult{}, c.fail(classifyTransportError(ctx, err))
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused for the retry.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return PageResult{}, c.fail(&SearchError{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PageResult{}, c.fail(classifyTransportError(ctx, err))
	}

	result, derr := decodePage(body, page)
	if derr != nil {
		return PageResult{}, c.fail(derr)
	}
	result.URL = req.URL.String()

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, cache.NewEntry(body, result.URL, c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache page")
		}
	}

	return result, nil
}

func (c *Client) fail(se *SearchError) *SearchError {
	errorsTotal.WithLabelValues(string(se.Kind)).Inc()
	c.logger.Debug().
		Str("error_kind", string(se.Kind)).
		Int("status", se.StatusCode).
		Msg("Error classified")
	return se
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetLogger replaces the component logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// Config returns the client's configuration.
func (c *Client) Config() Config {
	return c.config
}
