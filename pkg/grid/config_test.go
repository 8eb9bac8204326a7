package grid

import (
	"encoding/json"
	"testing"

	"github.com/Sternrassler/gridscan/pkg/geo"
	"github.com/Sternrassler/gridscan/pkg/pagination"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.Region != ContiguousUS {
		t.Errorf("Region = %v, want contiguous US", cfg.Region)
	}
	if cfg.LatStep != 0.1 || cfg.LngStep != 0.1 {
		t.Errorf("steps = %v/%v, want 0.1/0.1", cfg.LatStep, cfg.LngStep)
	}
	if cfg.Threshold != 350 || cfg.MaxDepth != 2 {
		t.Errorf("threshold=%d maxDepth=%d, want 350/2", cfg.Threshold, cfg.MaxDepth)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero depth", func(c *Config) { c.MaxDepth = 0 }, false},
		{"inverted region", func(c *Config) { c.Region.LatMin, c.Region.LatMax = c.Region.LatMax, c.Region.LatMin }, true},
		{"flat region", func(c *Config) { c.Region.LngMax = c.Region.LngMin }, true},
		{"zero lat step", func(c *Config) { c.LatStep = 0 }, true},
		{"negative lng step", func(c *Config) { c.LngStep = -1 }, true},
		{"negative threshold", func(c *Config) { c.Threshold = -1 }, true},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSummary_Add(t *testing.T) {
	leaf := func(n int, status pagination.Status) Leaf {
		return Leaf{
			Cell:    geo.Cell{BBox: unitBox, Depth: 1},
			Outcome: pagination.FetchOutcome{Records: make([]json.RawMessage, n), Status: status},
		}
	}

	var s Summary
	s.Add(CellReport{Leaves: []Leaf{leaf(10, pagination.StatusComplete)}}, 350)
	s.Add(CellReport{
		Subdivided: true,
		Leaves: []Leaf{
			leaf(400, pagination.StatusComplete),
			leaf(5, pagination.StatusPartialAborted),
			leaf(0, pagination.StatusComplete),
		},
	}, 350)

	want := Summary{Cells: 2, Subdivided: 1, Leaves: 4, Records: 415, Aborted: 1, Capped: 1}
	if s != want {
		t.Errorf("Summary = %+v, want %+v", s, want)
	}
}
