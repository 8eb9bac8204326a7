// Package cache provides a layered cache for raw search API page responses.
//
// A scan over a large region issues many thousands of identical page
// requests when it is re-run. Caching the raw response bodies lets a
// re-run skip the network for pages it has already seen.
//
// Layers are consulted in order. A hit in a lower layer is written back to
// the layers above it.
//
//   - MemoryLayer: in-process LRU (hashicorp/golang-lru)
//   - RedisLayer: shared Redis store with per-entry TTL
//
// # Basic Usage
//
//	mem, _ := cache.NewMemoryLayer(4096)
//	rl := cache.NewRedisLayer(redisClient)
//	pc := cache.NewPageCache(mem, rl)
//
//	key := cache.PageKey{BBox: "-125,49.28,-124.9,49.38", Page: 1, PageSize: 500, Sort: "recommended"}
//	entry, err := pc.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream, then:
//		pc.Set(ctx, key, cache.NewEntry(body, url, 24*time.Hour))
//	}
//
// # Metrics
//
//   - gridscan_cache_hits_total{layer} - Cache hits by layer
//   - gridscan_cache_misses_total - Misses across all layers
//   - gridscan_cache_errors_total{operation} - Layer errors (get, set, delete)
//
// Layer errors are never fatal to a scan: a failing layer is treated as a
// miss on read and skipped on write.
package cache
