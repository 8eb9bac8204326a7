package cache

import (
	"time"
)

// Entry is a cached page response.
type Entry struct {
	// Body is the raw JSON response body
	Body []byte `json:"body"`

	// URL is the request URL that produced the body
	URL string `json:"url"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry builds an entry that expires ttl from now.
func NewEntry(body []byte, url string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Body:     body,
		URL:      url,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
