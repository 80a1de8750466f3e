package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors. A nil *Metrics is valid and
// makes every method a no-op, so instrumentation never needs guarding at
// call sites.
type Metrics struct {
	registry *prometheus.Registry

	inboundTotal    prometheus.Counter
	outboundTotal   prometheus.Counter
	outboundLimited prometheus.Counter
	aiCallsTotal    *prometheus.CounterVec
	matchesTotal    *prometheus.CounterVec
	jobRunsTotal    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		inboundTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "nelo_inbound_messages_total",
			Help: "Inbound WhatsApp messages received.",
		}),
		outboundTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "nelo_outbound_messages_total",
			Help: "Outbound WhatsApp messages sent.",
		}),
		outboundLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "nelo_outbound_rate_limited_total",
			Help: "Outbound messages rejected by the per-recipient window.",
		}),
		aiCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nelo_ai_calls_total",
			Help: "Generative model calls by outcome.",
		}, []string{"outcome"}),
		matchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nelo_matches_total",
			Help: "Matches produced by the scheduler, by tier.",
		}, []string{"tier"}),
		jobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nelo_job_runs_total",
			Help: "Background job executions by job and result.",
		}, []string{"job", "result"}),
	}
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncInbound() {
	if m == nil {
		return
	}
	m.inboundTotal.Inc()
}

func (m *Metrics) IncOutbound(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboundTotal.Add(float64(n))
}

func (m *Metrics) IncOutboundRateLimited() {
	if m == nil {
		return
	}
	m.outboundLimited.Inc()
}

func (m *Metrics) IncAICall(outcome string) {
	if m == nil {
		return
	}
	m.aiCallsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncMatch(tier string) {
	if m == nil {
		return
	}
	m.matchesTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) IncJobRun(job, result string) {
	if m == nil {
		return
	}
	m.jobRunsTotal.WithLabelValues(job, result).Inc()
}
