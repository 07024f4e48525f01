package ranking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics with bounded cardinality (no per-entity labels).
var (
	pageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ranking_page_fetch_duration_seconds",
		Help:    "Time spent serving one ranked page, rebuild path included",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	})

	fetchBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ranking_detail_batch_size",
		Help:    "Number of entity ids resolved per pipelined detail fetch",
		Buckets: []float64{1, 10, 25, 50, 100, 250, 500},
	})

	rebuildTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ranking_rebuild_total",
		Help: "Times the empty-index recovery path ran",
	})

	indexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ranking_index_size",
		Help: "Ranking index cardinality as of the last read",
	})
)
