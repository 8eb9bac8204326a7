package grid

import (
	"iter"

	"github.com/Sternrassler/gridscan/pkg/geo"
)

// Lattice yields the top-level cells covering region, north to south and
// west to east. Positions are computed as multiples of the step from the
// northern and western bounds so that neighbouring cells share edges
// exactly and rounding does not accumulate. The last row and column are
// clamped to the region, so no cell extends past it.
//
// Callers must still check Valid on every box: a clamped cell can collapse
// to zero extent.
func Lattice(region geo.BoundingBox, latStep, lngStep float64) iter.Seq[geo.BoundingBox] {
	return func(yield func(geo.BoundingBox) bool) {
		if !region.Valid() || latStep <= 0 || lngStep <= 0 {
			return
		}
		for i := 0; ; i++ {
			north := region.LatMax - float64(i)*latStep
			if north <= region.LatMin {
				return
			}
			south := max(region.LatMax-float64(i+1)*latStep, region.LatMin)

			for j := 0; ; j++ {
				west := region.LngMin + float64(j)*lngStep
				if west >= region.LngMax {
					break
				}
				east := min(region.LngMin+float64(j+1)*lngStep, region.LngMax)

				if !yield(geo.BoundingBox{LatMin: south, LatMax: north, LngMin: west, LngMax: east}) {
					return
				}
			}
		}
	}
}
