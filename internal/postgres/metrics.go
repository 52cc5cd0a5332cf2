package postgres

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics is a QueryObserver backed by a Prometheus histogram.
type QueryMetrics struct {
	Duration *prometheus.HistogramVec
}

// NewQueryMetrics registers intake_db_query_duration_seconds on reg.
func NewQueryMetrics(reg prometheus.Registerer) *QueryMetrics {
	m := &QueryMetrics{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_db_query_duration_seconds",
			Help:    "Duration of database queries by originating route and outcome.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~4s
		}, []string{"method", "route", "outcome"}),
	}
	reg.MustRegister(m.Duration)
	return m
}

// ObserveQuery implements QueryObserver.
func (m *QueryMetrics) ObserveQuery(_ context.Context, method, route, outcome string, dur time.Duration) {
	m.Duration.WithLabelValues(method, route, outcome).Observe(dur.Seconds())
}
