package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// RouterMetrics tracks message dispatch inside the router.
type RouterMetrics struct {
	messages    *prometheus.CounterVec
	submessages *prometheus.CounterVec
	replies     *prometheus.CounterVec
	rollbacks   *prometheus.CounterVec
	depth       prometheus.Histogram
}

var (
	routerMetricsOnce sync.Once
	routerRegistry    *RouterMetrics
)

// Router returns the lazily-initialised router metrics registry.
func Router() *RouterMetrics {
	routerMetricsOnce.Do(func() {
		routerRegistry = &RouterMetrics{
			messages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainsim",
				Subsystem: "router",
				Name:      "messages_total",
				Help:      "Dispatched messages segmented by handling module and outcome.",
			}, []string{"module", "outcome"}),
			submessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainsim",
				Subsystem: "router",
				Name:      "submessages_total",
				Help:      "Sub-messages executed segmented by reply policy and outcome.",
			}, []string{"reply_on", "outcome"}),
			replies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainsim",
				Subsystem: "router",
				Name:      "replies_total",
				Help:      "Reply entry point invocations segmented by mode.",
			}, []string{"mode"}),
			rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chainsim",
				Subsystem: "router",
				Name:      "rollbacks_total",
				Help:      "Scopes discarded segmented by level (top or nested).",
			}, []string{"level"}),
			depth: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "chainsim",
				Subsystem: "router",
				Name:      "call_depth",
				Help:      "Nesting depth at which messages were dispatched.",
				Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
			}),
		}
		prometheus.MustRegister(
			routerRegistry.messages,
			routerRegistry.submessages,
			routerRegistry.replies,
			routerRegistry.rollbacks,
			routerRegistry.depth,
		)
	})
	return routerRegistry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func label(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

// ObserveMessage records a dispatched message and the depth it ran at.
func (m *RouterMetrics) ObserveMessage(module string, depth int, err error) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(label(module), outcome(err)).Inc()
	m.depth.Observe(float64(depth))
}

// ObserveSubMessage records the outcome of a sub-message before any reply.
func (m *RouterMetrics) ObserveSubMessage(replyOn string, err error) {
	if m == nil {
		return
	}
	m.submessages.WithLabelValues(label(replyOn), outcome(err)).Inc()
}

// RecordReply counts a reply call in the given mode.
func (m *RouterMetrics) RecordReply(mode string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(label(mode)).Inc()
}

// RecordRollback counts a discarded scope. Level is "top" or "nested".
func (m *RouterMetrics) RecordRollback(level string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(label(level)).Inc()
}
