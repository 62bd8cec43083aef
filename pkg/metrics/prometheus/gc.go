package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittodoc/pkg/gc"
	"github.com/marmos91/dittodoc/pkg/metrics"
)

// gcMetrics is the Prometheus implementation of gc.Metrics.
type gcMetrics struct {
	runsTotal         prometheus.Counter
	runDuration       prometheus.Histogram
	nodesTotal        *prometheus.GaugeVec
	unreferencedNodes *prometheus.GaugeVec
	tombstonedTotal   *prometheus.CounterVec
	deletedTotal      *prometheus.CounterVec
	inactiveUsage     *prometheus.CounterVec
	tombstoneAccess   *prometheus.CounterVec
	summaryBlobs      *prometheus.CounterVec
}

// NewGCMetrics creates a new Prometheus-backed gc.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// A nil sink disables collection with zero overhead.
func NewGCMetrics() gc.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &gcMetrics{
		runsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittodoc_gc_runs_total",
				Help: "Total number of completed garbage collection runs",
			},
		),
		runDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittodoc_gc_run_duration_milliseconds",
				Help: "Duration of garbage collection runs in milliseconds",
				Buckets: []float64{
					1,    // 1ms - small graphs
					5,    // 5ms
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms
					1000, // 1s - large graphs
					5000, // 5s
				},
			},
		),
		nodesTotal: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittodoc_gc_nodes",
				Help: "Nodes reported by the runtime in the last run, by node type",
			},
			[]string{"node_type"},
		),
		unreferencedNodes: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittodoc_gc_unreferenced_nodes",
				Help: "Nodes without a path from the root in the last run, by node type",
			},
			[]string{"node_type"},
		),
		tombstonedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodoc_gc_tombstoned_total",
				Help: "Total number of nodes tombstoned, by node type",
			},
			[]string{"node_type"},
		),
		deletedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodoc_gc_deleted_total",
				Help: "Total number of nodes physically deleted, by node type",
			},
			[]string{"node_type"},
		),
		inactiveUsage: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodoc_gc_inactive_usage_total",
				Help: "Total number of accesses to inactive nodes, by node type",
			},
			[]string{"node_type"},
		),
		tombstoneAccess: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodoc_gc_tombstone_access_total",
				Help: "Total number of denied accesses to tombstoned nodes, by node type",
			},
			[]string{"node_type"},
		),
		summaryBlobs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodoc_gc_summary_blobs_total",
				Help: "Total number of summary blobs produced, by mode (fresh or handle reuse)",
			},
			[]string{"mode"}, // "fresh", "reuse"
		),
	}
}

// ObserveRun records a completed CollectGarbage run.
func (m *gcMetrics) ObserveRun(duration time.Duration, stats *gc.Stats) {
	if m == nil {
		return
	}

	m.runsTotal.Inc()
	m.runDuration.Observe(float64(duration.Milliseconds()))

	setTypeCounts(m.nodesTotal, stats.Total)
	setTypeCounts(m.unreferencedNodes, stats.Unreferenced)

	// Deletions are recorded by RecordSweep as they happen.
	addTypeCounts(m.tombstonedTotal, stats.Tombstoned)
}

// RecordInactiveUsage records access to an inactive node.
func (m *gcMetrics) RecordInactiveUsage(nodeType gc.NodeType) {
	if m == nil {
		return
	}
	m.inactiveUsage.WithLabelValues(string(nodeType)).Inc()
}

// RecordTombstoneAccess records denied access to a tombstoned node.
func (m *gcMetrics) RecordTombstoneAccess(nodeType gc.NodeType) {
	if m == nil {
		return
	}
	m.tombstoneAccess.WithLabelValues(string(nodeType)).Inc()
}

// RecordSweep records physically deleted nodes.
func (m *gcMetrics) RecordSweep(nodeType gc.NodeType, count int) {
	if m == nil {
		return
	}
	m.deletedTotal.WithLabelValues(string(nodeType)).Add(float64(count))
}

// RecordSummaryBlobs records how many summary blobs were written fresh
// versus reused as handles.
func (m *gcMetrics) RecordSummaryBlobs(fresh, reused int) {
	if m == nil {
		return
	}
	m.summaryBlobs.WithLabelValues("fresh").Add(float64(fresh))
	m.summaryBlobs.WithLabelValues("reuse").Add(float64(reused))
}

func setTypeCounts(vec *prometheus.GaugeVec, counts gc.TypeCounts) {
	vec.WithLabelValues(string(gc.NodeTypeDataStore)).Set(float64(counts.DataStores))
	vec.WithLabelValues(string(gc.NodeTypeBlob)).Set(float64(counts.Blobs))
	vec.WithLabelValues(string(gc.NodeTypeOther)).Set(float64(counts.Other))
}

func addTypeCounts(vec *prometheus.CounterVec, counts gc.TypeCounts) {
	if counts.DataStores > 0 {
		vec.WithLabelValues(string(gc.NodeTypeDataStore)).Add(float64(counts.DataStores))
	}
	if counts.Blobs > 0 {
		vec.WithLabelValues(string(gc.NodeTypeBlob)).Add(float64(counts.Blobs))
	}
	if counts.Other > 0 {
		vec.WithLabelValues(string(gc.NodeTypeOther)).Add(float64(counts.Other))
	}
}
