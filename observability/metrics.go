// Package observability provides metrics and tracing instruments for the
// mirror pipeline.
package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds the mirror's instruments, backed by any go-utils
// MetricFactory (e.g. fapp.Metrics() inside a forge application).
type Metrics struct {
	WebhooksReceived gu.Counter
	EventsApplied    gu.Counter
	TasksTotal       gu.Counter
	TaskLatency      gu.Histogram
	PendingTasks     gu.Gauge
	DLQSize          gu.Gauge
	CatchUpPages     gu.Counter
}

// NewMetrics creates the mirror instruments using factory.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		WebhooksReceived: factory.Counter("mirror_webhooks_received_total"),
		EventsApplied:    factory.Counter("mirror_events_applied_total"),
		TasksTotal:       factory.Counter("mirror_tasks_total"),
		TaskLatency:      factory.Histogram("mirror_task_latency_seconds"),
		PendingTasks:     factory.Gauge("mirror_pending_tasks"),
		DLQSize:          factory.Gauge("mirror_dlq_size"),
		CatchUpPages:     factory.Counter("mirror_catchup_pages_total"),
	}
}

// RecordTask records one task attempt with its final status and latency.
func (m *Metrics) RecordTask(kind, status string, latencySeconds float64) {
	m.TasksTotal.WithLabels(map[string]string{"kind": kind, "status": status}).Inc()
	m.TaskLatency.Observe(latencySeconds)
}

// RecordApplied counts one considered event by type and outcome.
func (m *Metrics) RecordApplied(eventType, outcome string) {
	m.EventsApplied.WithLabels(map[string]string{"type": eventType, "outcome": outcome}).Inc()
}
