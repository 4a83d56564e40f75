// Package metrics exposes session and pipeline metrics for Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/clerk/internal/session"
)

type Metrics struct {
	registry      *prometheus.Registry
	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter
	state         *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	steps         *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clerk_http_requests_total",
		Help: "Total number of control API requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clerk_http_errors_total",
		Help: "Total number of control API responses with status >= 400",
	})
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clerk_session_state",
		Help: "1 for the current lifecycle state of the session, 0 otherwise",
	}, []string{"state"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clerk_session_transitions_total",
		Help: "Lifecycle transitions by target state",
	}, []string{"state"})
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clerk_finalize_steps_total",
		Help: "Finalization step outcomes",
	}, []string{"step", "outcome"})

	registry.MustRegister(requestsTotal, errorsTotal, state, transitions, steps)

	for _, s := range session.States {
		state.WithLabelValues(string(s)).Set(0)
	}

	return &Metrics{
		registry:      registry,
		requestsTotal: requestsTotal,
		errorsTotal:   errorsTotal,
		state:         state,
		transitions:   transitions,
		steps:         steps,
	}
}

// WatchSession exports the live counters of s, read at scrape time.
func (m *Metrics) WatchSession(s *session.Session) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "clerk_session_segments",
			Help: "Transcript segments captured in the current session",
		}, func() float64 { return float64(s.Segments()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "clerk_session_audio_chunks",
			Help: "Audio chunks received in the current session",
		}, func() float64 { return float64(s.Chunks()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "clerk_session_audio_bytes",
			Help: "Audio bytes received in the current session",
		}, func() float64 { return float64(s.Bytes()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "clerk_session_elapsed_seconds",
			Help: "Seconds since the session started",
		}, func() float64 { return s.Elapsed().Seconds() }),
	)
}

// Transition satisfies session.Listener.
func (m *Metrics) Transition(snap session.Snapshot, from session.State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(string(from)).Set(0)
	m.state.WithLabelValues(string(snap.State)).Set(1)
	m.transitions.WithLabelValues(string(snap.State)).Inc()
}

// ObserveStep counts one finalization step outcome.
func (m *Metrics) ObserveStep(step, outcome string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
