// Package config reads the scanner configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/gridscan/pkg/cache"
	"github.com/Sternrassler/gridscan/pkg/client"
	"github.com/Sternrassler/gridscan/pkg/geo"
	"github.com/Sternrassler/gridscan/pkg/grid"
	"github.com/Sternrassler/gridscan/pkg/logging"
	"github.com/Sternrassler/gridscan/pkg/pagination"
	"github.com/Sternrassler/gridscan/pkg/ratelimit"
)

// Config is the complete scanner configuration. It is built once at startup
// and handed to components by value.
type Config struct {
	// Scan
	Region    geo.BoundingBox
	LatStep   float64
	LngStep   float64
	Threshold int
	MaxDepth  int

	// Fetch
	BaseURL        string
	UserAgent      string
	PageSize       int
	Sort           string
	RequestTimeout time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	InterPageDelay time.Duration
	InterCellDelay time.Duration

	// Ambient
	LogLevel        string
	LogPretty       bool
	RedisAddr       string
	CacheTTL        time.Duration
	CacheMemorySize int
	MetricsAddr     string
	StorePath       string
	Pause           bool
}

// FromEnv reads the configuration from environment variables, falling back
// to the defaults for anything unset or unparsable.
func FromEnv() Config {
	region := grid.ContiguousUS
	clientDefaults := client.DefaultConfig()
	retryDefaults := client.DefaultRetryPolicy()
	delays := ratelimit.DefaultDelays()

	return Config{
		Region: geo.BoundingBox{
			LatMin: getfloat("REGION_LAT_MIN", region.LatMin),
			LatMax: getfloat("REGION_LAT_MAX", region.LatMax),
			LngMin: getfloat("REGION_LNG_MIN", region.LngMin),
			LngMax: getfloat("REGION_LNG_MAX", region.LngMax),
		},
		LatStep:   getfloat("LAT_STEP", 0.1),
		LngStep:   getfloat("LNG_STEP", 0.1),
		Threshold: getint("THRESHOLD", 350),
		MaxDepth:  getint("MAX_DEPTH", 2),

		BaseURL:        getenv("BASE_URL", clientDefaults.BaseURL),
		UserAgent:      getenv("USER_AGENT", clientDefaults.UserAgent),
		PageSize:       getint("PAGE_SIZE", clientDefaults.PageSize),
		Sort:           getenv("SORT", clientDefaults.Sort),
		RequestTimeout: getduration("REQUEST_TIMEOUT", clientDefaults.RequestTimeout),
		MaxAttempts:    getint("MAX_ATTEMPTS", retryDefaults.MaxAttempts),
		RetryDelay:     getduration("RETRY_DELAY", retryDefaults.Delay),
		InterPageDelay: getduration("INTER_PAGE_DELAY", delays.InterPage),
		InterCellDelay: getduration("INTER_CELL_DELAY", delays.InterCell),

		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogPretty:       getbool("LOG_PRETTY", false),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		CacheTTL:        getduration("CACHE_TTL", clientDefaults.CacheTTL),
		CacheMemorySize: getint("CACHE_MEMORY_SIZE", 4096),
		MetricsAddr:     getenv("METRICS_ADDR", ""),
		StorePath:       getenv("STORE_PATH", ""),
		Pause:           getbool("PAUSE", false),
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Grid().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be >= 1 (got %d)", c.PageSize))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_ATTEMPTS must be >= 1 (got %d)", c.MaxAttempts))
	}
	if c.RetryDelay < 0 || c.InterPageDelay < 0 || c.InterCellDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.CacheMemorySize < 0 {
		errs = append(errs, fmt.Errorf("CACHE_MEMORY_SIZE must be >= 0 (got %d)", c.CacheMemorySize))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL must not be empty"))
	}
	return errors.Join(errs...)
}

// Grid returns the scan parameters.
func (c Config) Grid() grid.Config {
	return grid.Config{
		Region:    c.Region,
		LatStep:   c.LatStep,
		LngStep:   c.LngStep,
		Threshold: c.Threshold,
		MaxDepth:  c.MaxDepth,
	}
}

// Client returns the search client configuration. pageCache may be nil.
func (c Config) Client(pageCache *cache.PageCache) client.Config {
	return client.Config{
		BaseURL:        c.BaseURL,
		UserAgent:      c.UserAgent,
		PageSize:       c.PageSize,
		Sort:           c.Sort,
		RequestTimeout: c.RequestTimeout,
		Cache:          pageCache,
		CacheTTL:       c.CacheTTL,
	}
}

// Retry returns the page retry policy.
func (c Config) Retry(logger zerolog.Logger) client.RetryPolicy {
	return client.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		Delay:       c.RetryDelay,
		Logger:      logger,
	}
}

// Delays returns the courtesy delays.
func (c Config) Delays() ratelimit.Delays {
	return ratelimit.Delays{
		InterPage: c.InterPageDelay,
		InterCell: c.InterCellDelay,
	}
}

// Pagination returns the cell fetcher configuration.
func (c Config) Pagination(pacer *ratelimit.Pacer, logger zerolog.Logger) pagination.Config {
	return pagination.Config{
		Retry: c.Retry(logger),
		Pacer: pacer,
	}
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
