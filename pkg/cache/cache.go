package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Layer is one storage tier of a PageCache.
type Layer interface {
	// Name labels the layer in metrics and logs.
	Name() string

	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key PageKey) (*Entry, error)

	Set(ctx context.Context, key PageKey, entry *Entry) error
}

// PageCache reads through its layers in order and writes to all of them.
type PageCache struct {
	layers []Layer
	logger zerolog.Logger
}

// NewPageCache creates a cache over the given layers, fastest first.
func NewPageCache(layers ...Layer) *PageCache {
	return &PageCache{
		layers: layers,
		logger: zerolog.Nop(),
	}
}

// WithLogger sets the logger used for layer errors.
func (c *PageCache) WithLogger(logger zerolog.Logger) *PageCache {
	c.logger = logger
	return c
}

// Get returns the first live entry found. Layers above the hit are backfilled.
func (c *PageCache) Get(ctx context.Context, key PageKey) (*Entry, error) {
	for i, layer := range c.layers {
		entry, err := layer.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrCacheMiss) {
				c.logger.Warn().Err(err).
					Str("layer", layer.Name()).
					Str("key", key.String()).
					Msg("Cache get error")
			}
			continue
		}

		CacheHits.WithLabelValues(layer.Name()).Inc()
		c.logger.Debug().
			Str("layer", layer.Name()).
			Str("key", key.String()).
			Msg("Cache hit")

		for _, upper := range c.layers[:i] {
			if err := upper.Set(ctx, key, entry); err != nil {
				c.logger.Warn().Err(err).Str("layer", upper.Name()).Msg("Cache backfill failed")
			}
		}
		return entry, nil
	}

	CacheMisses.Inc()
	return nil, ErrCacheMiss
}

// Set stores the entry in every layer. It returns the first layer error,
// after attempting all layers.
func (c *PageCache) Set(ctx context.Context, key PageKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	var firstErr error
	for _, layer := range c.layers {
		if err := layer.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).
				Str("layer", layer.Name()).
				Str("key", key.String()).
				Msg("Cache set error")
			if firstErr == nil {
				firstErr = fmt.Errorf("%s layer: %w", layer.Name(), err)
			}
		}
	}
	return firstErr
}
