// Package geo defines the bounding boxes and cells the grid scanner works on.
package geo

import (
	"fmt"
	"strconv"
)

// BoundingBox is an axis-aligned box in WGS84 degrees.
type BoundingBox struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LngMin float64 `json:"lng_min"`
	LngMax float64 `json:"lng_max"`
}

// Valid reports whether the box has a positive extent on both axes.
// Boxes that are not valid must never be queried.
func (b BoundingBox) Valid() bool {
	return b.LatMin < b.LatMax && b.LngMin < b.LngMax
}

// Midpoint returns the centre of the box.
func (b BoundingBox) Midpoint() (lat, lng float64) {
	return (b.LatMax + b.LatMin) / 2, (b.LngMax + b.LngMin) / 2
}

// Quadrants splits the box at its midpoint into NW, NE, SW and SE, in that order.
//
// Siblings share the midpoint lines exactly, so an upstream service with
// inclusive bbox filtering can return a record lying on a shared edge from
// two quadrants. The scanner does not deduplicate those.
func (b BoundingBox) Quadrants() [4]BoundingBox {
	latMid, lngMid := b.Midpoint()
	return [4]BoundingBox{
		NW: {LatMin: latMid, LatMax: b.LatMax, LngMin: b.LngMin, LngMax: lngMid},
		NE: {LatMin: latMid, LatMax: b.LatMax, LngMin: lngMid, LngMax: b.LngMax},
		SW: {LatMin: b.LatMin, LatMax: latMid, LngMin: b.LngMin, LngMax: lngMid},
		SE: {LatMin: b.LatMin, LatMax: latMid, LngMin: lngMid, LngMax: b.LngMax},
	}
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lng >= b.LngMin && lng <= b.LngMax
}

// QueryString formats the box the way the search API expects it:
// "lngMin,latMin,lngMax,latMax" (west,south,east,north).
func (b BoundingBox) QueryString() string {
	return formatCoord(b.LngMin) + "," + formatCoord(b.LatMin) + "," +
		formatCoord(b.LngMax) + "," + formatCoord(b.LatMax)
}

// String is a human-readable rendering for logs.
func (b BoundingBox) String() string {
	return fmt.Sprintf("LAT %.5f-%.5f LNG %.5f-%.5f", b.LatMax, b.LatMin, b.LngMin, b.LngMax)
}

// ParseQueryString is the inverse of QueryString.
func ParseQueryString(s string) (BoundingBox, error) {
	var parts [4]float64
	start, idx := 0, 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ',' {
			continue
		}
		if idx >= 4 {
			return BoundingBox{}, fmt.Errorf("bbox %q: too many coordinates", s)
		}
		f, err := strconv.ParseFloat(s[start:i], 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		parts[idx] = f
		idx++
		start = i + 1
	}
	if idx != 4 {
		return BoundingBox{}, fmt.Errorf("bbox %q: want 4 coordinates, got %d", s, idx)
	}
	return BoundingBox{LngMin: parts[0], LatMin: parts[1], LngMax: parts[2], LatMax: parts[3]}, nil
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
