// Package testutil provides testing utilities for the grid scanner.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/Sternrassler/gridscan/pkg/geo"
)

// SearchPath is the path the mock serves.
const SearchPath = "/search"

// Point is a located record served by the mock.
type Point struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Failure is one scripted failed response.
type Failure struct {
	// StatusCode, when non-zero, is written with an error body.
	StatusCode int
	// Malformed writes a 200 with a non-JSON body.
	Malformed bool
	// Drop closes the connection without a response.
	Drop bool
}

// Request is one observed request.
type Request struct {
	BBox     string
	Page     int
	PageSize int
	Query    map[string][]string
	Header   http.Header
}

// MockSearchAPI is a configurable mock of the bbox search endpoint.
//
// Records are served from a point set filtered by the requested bbox with
// inclusive edges, which reproduces the upstream's boundary overlap.
type MockSearchAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	points    []Point
	failures  map[string][]Failure
	raw       map[string]string
	pageCount map[string]string
	requests  []Request
}

// NewMockSearchAPI creates a new mock search server.
func NewMockSearchAPI() *MockSearchAPI {
	m := &MockSearchAPI{
		failures:  make(map[string][]Failure),
		raw:       make(map[string]string),
		pageCount: make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(SearchPath, m.handle)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the search endpoint URL.
func (m *MockSearchAPI) URL() string {
	return m.server.URL + SearchPath
}

// Close shuts down the mock server.
func (m *MockSearchAPI) Close() {
	m.server.Close()
}

// AddPoints adds records to the served point set.
func (m *MockSearchAPI) AddPoints(points ...Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, points...)
}

// AddGrid adds n evenly spaced points strictly inside bbox, keeping them
// off any midpoint so subdivision never double-counts them.
func (m *MockSearchAPI) AddGrid(bbox geo.BoundingBox, perSide int, idPrefix string) {
	var pts []Point
	for i := 0; i < perSide; i++ {
		for j := 0; j < perSide; j++ {
			lat := bbox.LatMin + (bbox.LatMax-bbox.LatMin)*(float64(i)+0.37)/float64(perSide)
			lng := bbox.LngMin + (bbox.LngMax-bbox.LngMin)*(float64(j)+0.41)/float64(perSide)
			pts = append(pts, Point{ID: fmt.Sprintf("%s-%d-%d", idPrefix, i, j), Lat: lat, Lng: lng})
		}
	}
	m.AddPoints(pts...)
}

// FailPage scripts failures for one page of one bbox. They are consumed in
// order; once used up the page is served normally.
func (m *MockSearchAPI) FailPage(bbox string, page int, failures ...Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pageKey(bbox, page)
	m.failures[k] = append(m.failures[k], failures...)
}

// SetRawPage makes one page of one bbox always return body with status 200.
func (m *MockSearchAPI) SetRawPage(bbox string, page int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw[pageKey(bbox, page)] = body
}

// SetPageCount overrides the raw JSON value of meta.page-count for a bbox.
// An empty value removes the key from meta.
func (m *MockSearchAPI) SetPageCount(bbox string, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCount[bbox] = raw
}

// Requests returns a copy of all requests received so far.
func (m *MockSearchAPI) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// RequestCount returns the number of requests received.
func (m *MockSearchAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// RequestsFor returns how many requests hit one page of one bbox.
func (m *MockSearchAPI) RequestsFor(bbox string, page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.BBox == bbox && r.Page == page {
			n++
		}
	}
	return n
}

// Reset clears the request log.
func (m *MockSearchAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// CountIn returns how many served points fall inside bbox.
func (m *MockSearchAPI) CountIn(bbox geo.BoundingBox) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pointsIn(bbox))
}

func (m *MockSearchAPI) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bboxStr := q.Get("filter[search][bbox]")
	page, _ := strconv.Atoi(q.Get("page[number]"))
	size, _ := strconv.Atoi(q.Get("page[size]"))

	m.mu.Lock()
	m.requests = append(m.requests, Request{
		BBox:     bboxStr,
		Page:     page,
		PageSize: size,
		Query:    q,
		Header:   r.Header.Clone(),
	})

	k := pageKey(bboxStr, page)
	var failure *Failure
	if fs := m.failures[k]; len(fs) > 0 {
		f := fs[0]
		failure = &f
		m.failures[k] = fs[1:]
	}
	raw, hasRaw := m.raw[k]
	pageCountRaw, hasPageCount := m.pageCount[bboxStr]
	m.mu.Unlock()

	if failure != nil {
		writeFailure(w, *failure)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if hasRaw {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(raw))
		return
	}

	bbox, err := geo.ParseQueryString(bboxStr)
	if err != nil || page < 1 || size < 1 {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"title":"bad request"}]}`))
		return
	}

	m.mu.Lock()
	matched := m.pointsIn(bbox)
	m.mu.Unlock()

	pages := (len(matched) + size - 1) / size
	start := (page - 1) * size
	end := min(start+size, len(matched))
	data := []Point{}
	if start < len(matched) {
		data = matched[start:end]
	}

	meta := map[string]json.RawMessage{
		"page-count":   json.RawMessage(strconv.Itoa(pages)),
		"record-count": json.RawMessage(strconv.Itoa(len(matched))),
	}
	if hasPageCount {
		if pageCountRaw == "" {
			delete(meta, "page-count")
		} else {
			meta["page-count"] = json.RawMessage(pageCountRaw)
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":  data,
		"meta":  meta,
		"links": map[string]string{},
	})
}

// pointsIn filters with inclusive edges. Callers hold m.mu.
func (m *MockSearchAPI) pointsIn(bbox geo.BoundingBox) []Point {
	var out []Point
	for _, p := range m.points {
		if bbox.Contains(p.Lat, p.Lng) {
			out = append(out, p)
		}
	}
	return out
}

func writeFailure(w http.ResponseWriter, f Failure) {
	switch {
	case f.Drop:
		hj, ok := w.(http.Hijacker)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
	case f.Malformed:
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>Just a moment...</body></html>"))
	default:
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(f.StatusCode)
		_, _ = w.Write([]byte(`{"errors":[{"title":"upstream error"}]}`))
	}
}

func pageKey(bbox string, page int) string {
	return bbox + "#" + strconv.Itoa(page)
}

// NewRecordsPage renders a page body with n records and a page count.
func NewRecordsPage(idPrefix string, n, pageCount int) string {
	data := make([]map[string]string, n)
	for i := range data {
		data[i] = map[string]string{"id": fmt.Sprintf("%s-%d", idPrefix, i)}
	}
	b, _ := json.Marshal(map[string]any{
		"data": data,
		"meta": map[string]int{"page-count": pageCount},
	})
	return string(b)
}
