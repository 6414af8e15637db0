package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"chainsim/core/types"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted chain events. It
// satisfies events.Emitter so the app can hand it committed events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainsim",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed chain events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Emit increments the counter for the event's type.
func (m *eventMetrics) Emit(ev types.Event) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(ev.Type))
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}
