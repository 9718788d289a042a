package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments report assembly.
type Metrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewMetrics registers the report collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dropship_stats_report_duration_seconds",
		Help:    "Time spent building a stats report, cache hits included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"viewpoint"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropship_stats_report_failures_total",
		Help: "Stats reports that ended in stats-fetch-error.",
	}, []string{"viewpoint"})
	registerer.MustRegister(duration, failures)
	return &Metrics{duration: duration, failures: failures}
}

func (m *Metrics) observe(v Viewpoint, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(string(v)).Observe(elapsed.Seconds())
	if err != nil {
		m.failures.WithLabelValues(string(v)).Inc()
	}
}
