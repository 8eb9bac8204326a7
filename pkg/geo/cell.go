package geo

// Quadrant identifies one of the four children of a subdivided box.
type Quadrant int

// Quadrants are visited in declaration order.
const (
	NW Quadrant = iota
	NE
	SW
	SE
)

func (q Quadrant) String() string {
	switch q {
	case NW:
		return "NW"
	case NE:
		return "NE"
	case SW:
		return "SW"
	case SE:
		return "SE"
	default:
		return "unknown"
	}
}

// Cell is a bounding box at a subdivision depth. Depth 0 is a top-level
// grid cell; each subdivision adds one.
type Cell struct {
	BBox  BoundingBox `json:"bbox"`
	Depth int         `json:"depth"`
}

// Children returns the four quadrant cells one level deeper, NW first.
func (c Cell) Children() [4]Cell {
	quads := c.BBox.Quadrants()
	var out [4]Cell
	for i, q := range quads {
		out[i] = Cell{BBox: q, Depth: c.Depth + 1}
	}
	return out
}
