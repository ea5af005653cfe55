// Package telemetry exposes Prometheus metrics for the job lifecycle and admission control.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	JobsCreated          prometheus.Counter
	JobsCompleted        prometheus.Counter
	JobsFailed           *prometheus.CounterVec
	JobsInFlight         prometheus.Gauge
	RateLimitRejects     prometheus.Counter
	RateLimitDegraded    prometheus.Counter
	NotificationFailures *prometheus.CounterVec
	RealtimeConnections  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry:      prometheus.NewRegistry(),
		JobsCreated:   prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzr_jobs_created_total", Help: "Analysis jobs accepted"}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzr_jobs_completed_total", Help: "Analysis jobs completed successfully"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzr_jobs_failed_total", Help: "Analysis jobs that ended in failed, by error code",
		}, []string{"code"}),
		JobsInFlight:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "analyzr_jobs_inflight", Help: "Background analyses currently running"}),
		RateLimitRejects:  prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzr_rate_limit_rejects_total", Help: "Requests rejected by the rate limiter"}),
		RateLimitDegraded: prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzr_rate_limit_degraded_total", Help: "Requests admitted because the counter store failed"}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzr_notification_failures_total", Help: "Fan-out deliveries that failed, by event type",
		}, []string{"type"}),
		RealtimeConnections: prometheus.NewGauge(prometheus.GaugeOpts{Name: "analyzr_realtime_connections", Help: "Websocket connections attached to this process"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsCreated,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsInFlight,
		m.RateLimitRejects,
		m.RateLimitDegraded,
		m.NotificationFailures,
		m.RealtimeConnections,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobCreated() {
	if m == nil {
		return
	}
	m.JobsCreated.Inc()
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsInFlight.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.JobsInFlight.Dec()
}

func (m *Metrics) JobCompleted() {
	if m == nil {
		return
	}
	m.JobsCompleted.Inc()
}

func (m *Metrics) JobFailed(code string) {
	if m == nil {
		return
	}
	m.JobsFailed.WithLabelValues(code).Inc()
}

func (m *Metrics) RateLimitRejected() {
	if m == nil {
		return
	}
	m.RateLimitRejects.Inc()
}

func (m *Metrics) RateLimitFailedOpen() {
	if m == nil {
		return
	}
	m.RateLimitDegraded.Inc()
}

func (m *Metrics) NotificationFailed(eventType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.NotificationFailures.WithLabelValues(eventType).Add(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.RealtimeConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.RealtimeConnections.Dec()
}
