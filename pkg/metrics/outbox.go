package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts outbox publish results.
type OutboxMetrics struct {
	results *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_results_total",
		Help: "Outbox publish attempts by event type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(results)
	return &OutboxMetrics{results: results}
}

// Published counts a delivered event.
func (m *OutboxMetrics) Published(eventType string) {
	m.inc(eventType, "published")
}

// Failed counts a retryable publish failure.
func (m *OutboxMetrics) Failed(eventType string) {
	m.inc(eventType, "failed")
}

// DeadLettered counts an event moved to the DLQ.
func (m *OutboxMetrics) DeadLettered(eventType string) {
	m.inc(eventType, "dead_lettered")
}

func (m *OutboxMetrics) inc(eventType, result string) {
	if m == nil || m.results == nil {
		return
	}
	m.results.WithLabelValues(normalizeLabel(eventType), result).Inc()
}
