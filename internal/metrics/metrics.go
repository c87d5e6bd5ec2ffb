// Package metrics exposes process-wide Prometheus counters and gauges for
// the trojan relay: active sessions, bytes relayed, and failure counts by
// stage. It has no per-user or per-connection dimension; these metrics
// stay process-wide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Direction labels a relay byte counter.
type Direction string

const (
	DirectionUpload   Direction = "upload"   // client -> remote
	DirectionDownload Direction = "download" // remote -> client
)

// Metrics holds the registered collectors. The zero value is not usable;
// construct with New.
type Metrics struct {
	SessionsActive    prometheus.Gauge
	SessionsTotal     prometheus.Counter
	BytesTotal        *prometheus.CounterVec
	AuthFailures      prometheus.Counter
	ResolveFailures   prometheus.Counter
	DialFailures      prometheus.Counter
	HandshakeFailures prometheus.Counter
}

// New registers the shroud collectors against a fresh registry and returns
// a Metrics handle plus an http.Handler suitable for mounting at /metrics.
func New() (*Metrics, http.Handler) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shroud_sessions_active",
			Help: "Number of trojan sessions currently being relayed.",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shroud_sessions_total",
			Help: "Total number of accepted trojan sessions.",
		}),
		BytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shroud_bytes_total",
			Help: "Total bytes relayed, by direction.",
		}, []string{"direction"}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shroud_auth_failures_total",
			Help: "Total sessions rejected for an incorrect password.",
		}),
		ResolveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shroud_resolve_failures_total",
			Help: "Total sessions aborted because the destination could not be resolved.",
		}),
		DialFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shroud_dial_failures_total",
			Help: "Total sessions aborted because the outbound connection failed.",
		}),
		HandshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shroud_handshake_failures_total",
			Help: "Total sessions aborted during the TLS handshake.",
		}),
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// AddBytes records n bytes relayed in the given direction. Safe to call with
// nil Metrics (no-op), so callers need not special-case metrics being disabled.
func (m *Metrics) AddBytes(dir Direction, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesTotal.WithLabelValues(string(dir)).Add(float64(n))
}

// SessionStarted increments the active and total session counters. Safe on nil.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// SessionEnded decrements the active session gauge. Safe on nil.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// IncAuthFailure records a rejected password. Safe on nil.
func (m *Metrics) IncAuthFailure() {
	if m == nil {
		return
	}
	m.AuthFailures.Inc()
}

// IncResolveFailure records a destination that failed to resolve. Safe on nil.
func (m *Metrics) IncResolveFailure() {
	if m == nil {
		return
	}
	m.ResolveFailures.Inc()
}

// IncDialFailure records an outbound dial that failed. Safe on nil.
func (m *Metrics) IncDialFailure() {
	if m == nil {
		return
	}
	m.DialFailures.Inc()
}

// IncHandshakeFailure records a failed TLS handshake. Safe on nil.
func (m *Metrics) IncHandshakeFailure() {
	if m == nil {
		return
	}
	m.HandshakeFailures.Inc()
}
