package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittodoc/pkg/metrics"
	"github.com/marmos91/dittodoc/pkg/snapshot/store"
)

// storeMetrics is the Prometheus implementation of store.Metrics.
type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewStoreMetrics creates a new Prometheus-backed store.Metrics
// instance labelled with the backend type ("memory", "fs", "badger",
// "s3").
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics(storeType string) store.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "dittodoc_store_operations_total",
				Help:        "Total number of blob store operations by operation type and status",
				ConstLabels: prometheus.Labels{"store_type": storeType},
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "dittodoc_store_operation_duration_milliseconds",
				Help:        "Duration of blob store operations in milliseconds",
				ConstLabels: prometheus.Labels{"store_type": storeType},
				Buckets: []float64{
					0.5,   // 500us - in-memory operations
					1,     // 1ms
					5,     // 5ms - local disk
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms - remote stores
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s - large blobs over the network
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "dittodoc_store_bytes_transferred_total",
				Help:        "Total payload bytes moved through the blob store",
				ConstLabels: prometheus.Labels{"store_type": storeType},
			},
			[]string{"operation"},
		),
	}
}

// ObserveOperation records one store operation with its outcome.
func (m *storeMetrics) ObserveOperation(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(float64(duration.Microseconds()) / 1000.0)
}

// RecordBytes records payload bytes moved by a read or write.
func (m *storeMetrics) RecordBytes(op string, n int) {
	if m == nil {
		return
	}
	m.bytesTransferred.WithLabelValues(op).Add(float64(n))
}
