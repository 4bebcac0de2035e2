package tree

import "github.com/prometheus/client_golang/prometheus"

// buildMetrics is the set of prometheus collectors one Builder registers.
// A caller embedding this package in a long-running service exposes them
// via its own /metrics handler; the CLI in this module never serves HTTP
// itself, it just exercises the registry.
type buildMetrics struct {
	batchDuration prometheus.Histogram
	nodesSplit    prometheus.Counter
	nodesForced   prometheus.Counter
	frontierSize  prometheus.Gauge
}

func newBuildMetrics(reg prometheus.Registerer) *buildMetrics {
	m := &buildMetrics{
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "batchtree",
			Subsystem: "builder",
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of one frontier batch's search+split.",
			Buckets:   prometheus.DefBuckets,
		}),
		nodesSplit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "batchtree",
			Subsystem: "builder",
			Name:      "nodes_split_total",
			Help:      "Frontier nodes that received a winning split.",
		}),
		nodesForced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "batchtree",
			Subsystem: "builder",
			Name:      "nodes_forced_leaf_total",
			Help:      "Frontier nodes forced to a leaf by the max_leaves limit.",
		}),
		frontierSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "batchtree",
			Subsystem: "builder",
			Name:      "frontier_size",
			Help:      "Number of nodes awaiting a batch in the current build.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.batchDuration, m.nodesSplit, m.nodesForced, m.frontierSize)
	}

	return m
}
