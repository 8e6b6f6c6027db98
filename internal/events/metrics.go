package events

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	droppedTotal prometheus.Counter

	deliveryFailures *prometheus.CounterVec

	metricsOnce sync.Once

	metricsRegistered bool
)

// InitMetrics registers the Prometheus metrics for the event sink. Call once
// at startup if metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyfold_events_dropped_total",
			Help: "Total number of lifecycle events dropped due to queue overflow",
		})
		deliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keyfold_events_delivery_failures_total",
			Help: "Total number of failed channel deliveries",
		}, []string{"channel"})
		metricsRegistered = true
	})
}

// incrementDroppedCounter is safe to call even when metrics are disabled.
func incrementDroppedCounter() {
	if metricsRegistered && droppedTotal != nil {
		droppedTotal.Inc()
	}
}

func incrementDeliveryFailure(channel string) {
	if metricsRegistered && deliveryFailures != nil {
		deliveryFailures.WithLabelValues(channel).Inc()
	}
}
