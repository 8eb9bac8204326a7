package grid

// Summary totals a scan.
type Summary struct {
	// Cells is the number of top-level cells fetched.
	Cells int `json:"cells"`

	// Skipped counts lattice cells with no extent.
	Skipped int `json:"skipped"`

	// Subdivided counts top-level cells that were split.
	Subdivided int `json:"subdivided"`

	// Leaves is the number of accepted leaves.
	Leaves int `json:"leaves"`

	// Records sums leaf record counts. Records on shared edges are counted
	// once per cell that returned them.
	Records int `json:"records"`

	// Aborted counts leaves with a partial fetch.
	Aborted int `json:"aborted"`

	// Capped counts leaves accepted above the threshold at the depth cap.
	Capped int `json:"capped"`
}

// Add folds one cell report into the summary.
func (s *Summary) Add(r CellReport, threshold int) {
	s.Cells++
	if r.Subdivided {
		s.Subdivided++
	}
	for _, l := range r.Leaves {
		s.Leaves++
		s.Records += l.Outcome.Count()
		if !l.Outcome.Complete() {
			s.Aborted++
		}
		if l.Dense(threshold) {
			s.Capped++
		}
	}
}
