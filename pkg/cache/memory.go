package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryLayer is an in-process LRU of page entries.
type MemoryLayer struct {
	mu  sync.Mutex
	lru *lru.Cache[string, *Entry]
}

// NewMemoryLayer creates an LRU holding at most size entries.
func NewMemoryLayer(size int) (*MemoryLayer, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryLayer{lru: c}, nil
}

// Name implements Layer.
func (m *MemoryLayer) Name() string { return "memory" }

// Get implements Layer.
func (m *MemoryLayer) Get(_ context.Context, key PageKey) (*Entry, error) {
	k := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lru.Get(k)
	if !ok {
		return nil, ErrCacheMiss
	}
	if entry.IsExpired() {
		m.lru.Remove(k)
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Set implements Layer. Expired entries are not stored.
func (m *MemoryLayer) Set(_ context.Context, key PageKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.TTL() <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Add(key.String(), entry)
	return nil
}

// Len returns the number of entries held.
func (m *MemoryLayer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
