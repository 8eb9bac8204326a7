// Package grid covers a region with a fixed-step lattice of cells and
// adaptively subdivides cells whose record count exceeds a threshold.
//
// The search API caps the records it will return for one query, so a cell
// holding more than the threshold is split at its midpoint into NW, NE, SW
// and SE quadrants, each fetched in turn. Dense quadrants are split again
// until MaxDepth. A cell at MaxDepth is accepted as a leaf whatever its
// count; the depth cap bounds the work, it does not guarantee coverage.
//
// Example usage:
//
//	walker, err := grid.NewWalker(cellFetcher, grid.DefaultConfig(), grid.WithPacer(pacer))
//	if err != nil {
//		return err
//	}
//	for report := range walker.Scan(ctx) {
//		for _, leaf := range report.Leaves {
//			fmt.Println(leaf.Cell.Depth, leaf.Outcome.Count())
//		}
//	}
//
// Everything runs on the caller's goroutine, one request at a time. Records
// lying exactly on a shared cell edge may be returned by both neighbours;
// the package does not deduplicate them.
package grid
