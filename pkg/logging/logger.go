// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is attached to every event when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "gridscan",
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name from configuration. Unknown names map
// to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch ParseLevel(string(level)) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithScan tags every event of logger with the scan run id.
func WithScan(logger zerolog.Logger, scanID string) zerolog.Logger {
	return logger.With().Str("scan_id", scanID).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Page progress (page, total_pages, records)
//   - Cache operations (hit/miss, key)
//   - Courtesy waits and skipped degenerate cells
//
// Info: Normal operation events
//   - Leaf outcomes (one per accepted cell)
//   - Subdivision decisions
//   - Scan start and summary
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent the scan
//   - Retry attempts and exhausted retries
//   - Partially aborted bbox fetches
//   - Cache errors (fallback to direct request)
//
// Error: Error conditions requiring attention
//   - Fatal classifications (malformed responses)
//   - Result store failures
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (search-client, cell-fetcher, grid, store)
//   - scan_id: run identifier shared by all events of one scan
//   - bbox: query string "lngMin,latMin,lngMax,latMax"
//   - depth: subdivision depth of the cell (0 = lattice cell)
//   - page / total_pages: pagination position
//   - records: record count of a page or leaf
//   - attempt / max_attempts: retry bookkeeping
//   - error_kind / error_class: transport, http, malformed, unclassified
//   - status: complete or partial_aborted
