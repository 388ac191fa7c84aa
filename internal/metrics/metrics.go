// Package metrics exports session counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/contentcrew/internal/supervisor"
	"github.com/user/contentcrew/internal/types"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	handoffs  *prometheus.HistogramVec
	sessions  *prometheus.CounterVec
	queued    prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentcrew_routing_decisions_total",
				Help: "Routing decisions taken by the supervisor",
			},
			[]string{"decision"},
		),
		handoffs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contentcrew_handoff_duration_seconds",
				Help:    "Duration of worker handoffs",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"worker", "result"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentcrew_sessions_total",
				Help: "Finished sessions by status",
			},
			[]string{"status"},
		),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "contentcrew_queued_runs",
			Help: "Runs waiting in gateway lanes",
		}),
	}
	m.registry.MustRegister(m.decisions, m.handoffs, m.sessions, m.queued)
	return m
}

// Hooks returns supervisor hooks that record into m.
func (m *Metrics) Hooks() supervisor.Hooks {
	return supervisor.Hooks{
		OnDecision: func(_ types.SessionID, d types.Decision) {
			m.decisions.WithLabelValues(string(d.Kind)).Inc()
		},
		OnHandoff: func(_ types.SessionID, worker types.AgentName, dur time.Duration, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.handoffs.WithLabelValues(string(worker), result).Observe(dur.Seconds())
		},
		OnFinish: func(o *types.Outcome) {
			m.sessions.WithLabelValues(string(o.Status)).Inc()
		},
	}
}

// SetQueued records the number of runs waiting in the gateway.
func (m *Metrics) SetQueued(n int) {
	m.queued.Set(float64(n))
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Chain runs each hook set in order.
func Chain(hooks ...supervisor.Hooks) supervisor.Hooks {
	return supervisor.Hooks{
		OnDecision: func(id types.SessionID, d types.Decision) {
			for _, h := range hooks {
				if h.OnDecision != nil {
					h.OnDecision(id, d)
				}
			}
		},
		OnHandoff: func(id types.SessionID, worker types.AgentName, dur time.Duration, err error) {
			for _, h := range hooks {
				if h.OnHandoff != nil {
					h.OnHandoff(id, worker, dur, err)
				}
			}
		},
		OnFinish: func(o *types.Outcome) {
			for _, h := range hooks {
				if h.OnFinish != nil {
					h.OnFinish(o)
				}
			}
		},
	}
}
