package rotation

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rotationsTotal *prometheus.CounterVec

	rotationDuration prometheus.Histogram

	metricsOnce sync.Once

	metricsRegistered bool
)

// InitMetrics registers the Prometheus metrics for the rotation engine.
// Call once at startup if metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		rotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keyfold_rotations_total",
			Help: "Total number of rotation attempts by outcome",
		}, []string{"status"})
		rotationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "keyfold_rotation_duration_seconds",
			Help:    "Duration of rotation attempts",
			Buckets: prometheus.DefBuckets,
		})
		metricsRegistered = true
	})
}

// observeRotation is safe to call even when metrics are disabled.
func observeRotation(status string, duration time.Duration) {
	if !metricsRegistered {
		return
	}
	rotationsTotal.WithLabelValues(status).Inc()
	rotationDuration.Observe(duration.Seconds())
}
