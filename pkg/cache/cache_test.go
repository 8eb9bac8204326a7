package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubLayer is a map-backed layer with an optional forced error.
type stubLayer struct {
	name    string
	entries map[string]*Entry
	err     error
	gets    int
	sets    int
}

func newStubLayer(name string) *stubLayer {
	return &stubLayer{name: name, entries: map[string]*Entry{}}
}

func (s *stubLayer) Name() string { return s.name }

func (s *stubLayer) Get(_ context.Context, key PageKey) (*Entry, error) {
	s.gets++
	if s.err != nil {
		return nil, s.err
	}
	e, ok := s.entries[key.String()]
	if !ok {
		return nil, ErrCacheMiss
	}
	return e, nil
}

func (s *stubLayer) Set(_ context.Context, key PageKey, entry *Entry) error {
	s.sets++
	if s.err != nil {
		return s.err
	}
	s.entries[key.String()] = entry
	return nil
}

func TestPageCache_MissAllLayers(t *testing.T) {
	upper, lower := newStubLayer("upper"), newStubLayer("lower")
	pc := NewPageCache(upper, lower)

	_, err := pc.Get(context.Background(), PageKey{BBox: "0,0,1,1", Page: 1})
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() error = %v, want ErrCacheMiss", err)
	}
	if upper.gets != 1 || lower.gets != 1 {
		t.Errorf("gets = %d/%d, want 1/1", upper.gets, lower.gets)
	}
}

func TestPageCache_LowerHitBackfillsUpper(t *testing.T) {
	ctx := context.Background()
	upper, lower := newStubLayer("upper"), newStubLayer("lower")
	pc := NewPageCache(upper, lower)

	key := PageKey{BBox: "0,0,1,1", Page: 2, PageSize: 500}
	lower.entries[key.String()] = NewEntry([]byte(`{"data":[]}`), "u", time.Minute)

	entry, err := pc.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(entry.Body) != `{"data":[]}` {
		t.Errorf("Body = %q", entry.Body)
	}
	if _, ok := upper.entries[key.String()]; !ok {
		t.Error("upper layer was not backfilled")
	}

	// Second read is served by the upper layer.
	if _, err := pc.Get(ctx, key); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if lower.gets != 1 {
		t.Errorf("lower gets = %d, want 1", lower.gets)
	}
}

func TestPageCache_FailingLayerIsSkipped(t *testing.T) {
	ctx := context.Background()
	broken, healthy := newStubLayer("broken"), newStubLayer("healthy")
	broken.err = errors.New("connection refused")
	pc := NewPageCache(broken, healthy)

	key := PageKey{BBox: "0,0,1,1", Page: 1}
	err := pc.Set(ctx, key, NewEntry([]byte("x"), "u", time.Minute))
	if err == nil {
		t.Error("Set() expected error from broken layer")
	}
	if healthy.sets != 1 {
		t.Errorf("healthy sets = %d, want 1", healthy.sets)
	}

	entry, err := pc.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(entry.Body) != "x" {
		t.Errorf("Body = %q, want x", entry.Body)
	}
}

func TestPageCache_SetNil(t *testing.T) {
	pc := NewPageCache(newStubLayer("a"))
	if err := pc.Set(context.Background(), PageKey{}, nil); err == nil {
		t.Error("Set(nil) expected error")
	}
}
