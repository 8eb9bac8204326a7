package grid

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for grid traversal.
var (
	cellsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridscan_cells_total",
		Help: "Total cells handled by kind (top, quadrant, leaf, skipped)",
	}, []string{"kind"})

	subdivisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridscan_subdivisions_total",
		Help: "Total cell subdivisions by depth of the split cell",
	}, []string{"depth"})
)
