// Package metrics exposes Prometheus counters for feed synchronization.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memberdesk"

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics groups the feed sync counters on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	polls     *prometheus.CounterVec
	alerts    *prometheus.CounterVec
	mutations *prometheus.CounterVec
	pages     *prometheus.CounterVec
	sends     *prometheus.CounterVec
}

// New creates and registers the counters.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Feed polls by feed and result.",
		}, []string{"feed", "result"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Transient alerts raised for newly arrived items.",
		}, []string{"feed"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Optimistic mutations by feed, kind and outcome.",
		}, []string{"feed", "kind", "result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_pages_total",
			Help:      "Message history page loads by result.",
		}, []string{"result"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Message sends by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.polls, m.alerts, m.mutations, m.pages, m.sends)
	return m
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Poll records a poll outcome.
func (m *Metrics) Poll(feed string, err error) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(feed, result(err)).Inc()
}

// Alerts records n alerts raised on feed.
func (m *Metrics) Alerts(feed string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.alerts.WithLabelValues(feed).Add(float64(n))
}

// Mutation records the outcome of an optimistic mutation.
func (m *Metrics) Mutation(feed, kind string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(feed, kind, result(err)).Inc()
}

// Page records a history page load.
func (m *Metrics) Page(err error) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(result(err)).Inc()
}

// Send records a message send.
func (m *Metrics) Send(err error) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result(err)).Inc()
}

// Registry returns the registry the counters live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
