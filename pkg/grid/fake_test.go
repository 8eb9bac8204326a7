package grid

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/gridscan/pkg/client"
	"github.com/Sternrassler/gridscan/pkg/geo"
	"github.com/Sternrassler/gridscan/pkg/pagination"
)

type point struct {
	id       string
	lat, lng float64
}

// pointFetcher answers every bbox with the points it contains, edges
// included, like the upstream search does.
type pointFetcher struct {
	points  []point
	aborted map[geo.BoundingBox]bool
	fetched []geo.BoundingBox
}

func newPointFetcher(points ...point) *pointFetcher {
	return &pointFetcher{points: points, aborted: make(map[geo.BoundingBox]bool)}
}

func (f *pointFetcher) Fetch(_ context.Context, bbox geo.BoundingBox) pagination.FetchOutcome {
	f.fetched = append(f.fetched, bbox)

	var records []client.Record
	for _, p := range f.points {
		if bbox.Contains(p.lat, p.lng) {
			records = append(records, json.RawMessage(fmt.Sprintf(`{"id":%q}`, p.id)))
		}
	}

	out := pagination.FetchOutcome{BBox: bbox, Records: records, Status: pagination.StatusComplete, Pages: 1, TotalPages: 1}
	if f.aborted[bbox] {
		out.Status = pagination.StatusPartialAborted
		out.Err = fmt.Errorf("page 2: %w", client.ErrRetryExhausted)
	}
	return out
}

// gridPoints spreads perSide*perSide points evenly over bbox, clear of
// every midpoint line down to several subdivision levels.
func gridPoints(bbox geo.BoundingBox, perSide int, prefix string) []point {
	var pts []point
	for i := 0; i < perSide; i++ {
		for j := 0; j < perSide; j++ {
			pts = append(pts, point{
				id:  fmt.Sprintf("%s-%d-%d", prefix, i, j),
				lat: bbox.LatMin + (bbox.LatMax-bbox.LatMin)*(float64(i)+0.37)/float64(perSide),
				lng: bbox.LngMin + (bbox.LngMax-bbox.LngMin)*(float64(j)+0.41)/float64(perSide),
			})
		}
	}
	return pts
}

var unitBox = geo.BoundingBox{LatMin: 0, LatMax: 1, LngMin: 0, LngMax: 1}

func singleCellConfig(threshold, maxDepth int) Config {
	return Config{
		Region:    unitBox,
		LatStep:   1,
		LngStep:   1,
		Threshold: threshold,
		MaxDepth:  maxDepth,
	}
}

func collect(w *Walker, ctx context.Context) []CellReport {
	var reports []CellReport
	for r := range w.Scan(ctx) {
		reports = append(reports, r)
	}
	return reports
}
