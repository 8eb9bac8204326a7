package config

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/gridscan/pkg/client"
	"github.com/Sternrassler/gridscan/pkg/grid"
	"github.com/Sternrassler/gridscan/pkg/logging"
	"github.com/Sternrassler/gridscan/pkg/ratelimit"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.Grid() != grid.DefaultConfig() {
		t.Errorf("Grid() = %+v, want %+v", cfg.Grid(), grid.DefaultConfig())
	}
	if cfg.PageSize != 500 || cfg.Sort != "recommended" {
		t.Errorf("page size/sort = %d/%q, want 500/recommended", cfg.PageSize, cfg.Sort)
	}
	if cfg.MaxAttempts != 3 || cfg.RetryDelay != 5*time.Second {
		t.Errorf("retry = %d/%v, want 3/5s", cfg.MaxAttempts, cfg.RetryDelay)
	}
	if cfg.Delays() != ratelimit.DefaultDelays() {
		t.Errorf("Delays() = %+v, want defaults", cfg.Delays())
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.BaseURL != client.DefaultBaseURL || cfg.UserAgent != client.DefaultUserAgent {
		t.Errorf("BaseURL/UserAgent not defaulted: %q / %q", cfg.BaseURL, cfg.UserAgent)
	}
	if cfg.RedisAddr != "" || cfg.MetricsAddr != "" || cfg.StorePath != "" || cfg.Pause {
		t.Error("optional collaborators should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("REGION_LAT_MIN", "40")
	t.Setenv("REGION_LAT_MAX", "41")
	t.Setenv("REGION_LNG_MIN", "-106")
	t.Setenv("REGION_LNG_MAX", "-105")
	t.Setenv("LAT_STEP", "0.25")
	t.Setenv("LNG_STEP", "0.5")
	t.Setenv("THRESHOLD", "100")
	t.Setenv("MAX_DEPTH", "4")
	t.Setenv("PAGE_SIZE", "250")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_DELAY", "2s")
	t.Setenv("INTER_PAGE_DELAY", "100ms")
	t.Setenv("INTER_CELL_DELAY", "0s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("PAUSE", "true")

	cfg := FromEnv()

	g := cfg.Grid()
	if g.Region.LatMin != 40 || g.Region.LngMax != -105 || g.LatStep != 0.25 || g.LngStep != 0.5 {
		t.Errorf("Grid() = %+v", g)
	}
	if g.Threshold != 100 || g.MaxDepth != 4 {
		t.Errorf("threshold/depth = %d/%d", g.Threshold, g.MaxDepth)
	}

	retry := cfg.Retry(zerolog.Nop())
	if retry.MaxAttempts != 5 || retry.Delay != 2*time.Second {
		t.Errorf("Retry() = %d/%v", retry.MaxAttempts, retry.Delay)
	}
	if d := cfg.Delays(); d.InterPage != 100*time.Millisecond || d.InterCell != 0 {
		t.Errorf("Delays() = %+v", d)
	}

	cc := cfg.Client(nil)
	if cc.PageSize != 250 || cc.CacheTTL != time.Hour || cc.Cache != nil {
		t.Errorf("Client() = %+v", cc)
	}

	lc := cfg.Logging()
	if lc.Level != logging.LevelDebug || !lc.Pretty {
		t.Errorf("Logging() = %+v", lc)
	}
	if cfg.RedisAddr != "localhost:6379" || !cfg.Pause {
		t.Errorf("ambient overrides not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestFromEnv_UnparsableFallsBack(t *testing.T) {
	t.Setenv("THRESHOLD", "lots")
	t.Setenv("LAT_STEP", "tiny")
	t.Setenv("RETRY_DELAY", "5")
	t.Setenv("PAUSE", "maybe")

	cfg := FromEnv()

	if cfg.Threshold != 350 || cfg.LatStep != 0.1 || cfg.RetryDelay != 5*time.Second || cfg.Pause {
		t.Errorf("unparsable values should fall back to defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"inverted region", func(c *Config) { c.Region.LatMin, c.Region.LatMax = 50, 40 }, "region"},
		{"zero step", func(c *Config) { c.LngStep = 0 }, "steps"},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, "max depth"},
		{"negative threshold", func(c *Config) { c.Threshold = -5 }, "threshold"},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "MAX_ATTEMPTS"},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, "PAGE_SIZE"},
		{"negative delay", func(c *Config) { c.InterCellDelay = -time.Second }, "delays"},
		{"empty base url", func(c *Config) { c.BaseURL = "" }, "BASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := FromEnv()
	cfg.PageSize = 0
	cfg.MaxAttempts = 0

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "PAGE_SIZE") || !strings.Contains(err.Error(), "MAX_ATTEMPTS") {
		t.Errorf("Validate() error = %v, want both problems reported", err)
	}
}
