package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// PageKey identifies one page of one bounding box query.
type PageKey struct {
	// BBox is the bbox query value ("lngMin,latMin,lngMax,latMax")
	BBox string

	// Page is the 1-based page number
	Page int

	// PageSize is the requested page size
	PageSize int

	// Sort is the sort mode sent upstream
	Sort string

	// Filters are the fixed filter parameters; they only contribute a digest
	Filters url.Values
}

// String generates a deterministic cache key string.
// Format: gridscan:search:bbox:page=N:size=N:sort=mode:f=digest
//
// Example:
//
//	gridscan:search:-125,49.28,-124.9,49.38:page=1:size=500:sort=recommended:f=ef46db3751d8e999
func (k PageKey) String() string {
	parts := []string{"gridscan", "search", strings.TrimSpace(k.BBox)}
	parts = append(parts,
		fmt.Sprintf("page=%d", k.Page),
		fmt.Sprintf("size=%d", k.PageSize),
	)
	if k.Sort != "" {
		parts = append(parts, "sort="+k.Sort)
	}
	parts = append(parts, fmt.Sprintf("f=%016x", xxhash.Sum64String(canonicalFilters(k.Filters))))
	return strings.Join(parts, ":")
}

// canonicalFilters renders filters sorted by key so map order never leaks into keys.
func canonicalFilters(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		vals := append([]string(nil), v[key]...)
		sort.Strings(vals)
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(strings.Join(vals, ","))
	}
	return b.String()
}
