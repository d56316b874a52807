package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports operation counters, latencies and conflict
// retries.
type PrometheusRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	conflicts  *prometheus.CounterVec
}

// NewPrometheusRecorder registers the assetflow collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetflow",
			Name:      "operations_total",
			Help:      "Engine operations by outcome.",
		}, []string{"operation", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assetflow",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetflow",
			Name:      "version_conflict_retries_total",
			Help:      "Optimistic concurrency retries after a version conflict.",
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.latency, r.conflicts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.operations.WithLabelValues(operation, result).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveConflict implements ConflictRecorder.
func (r *PrometheusRecorder) ObserveConflict(operation string) {
	r.conflicts.WithLabelValues(operation).Inc()
}
