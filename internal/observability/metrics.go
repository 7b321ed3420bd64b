package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec
	CredentialFetches *prometheus.CounterVec
	SpeakErrors       *prometheus.CounterVec
	KeepAlivePings    *prometheus.CounterVec
	DemoNavigations   prometheus.Counter
	WSMessages        *prometheus.CounterVec
	TeardownLatency   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of registered avatar session controllers.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session registry events by type.",
		}, []string{"event"}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Controller state transitions by target state.",
		}, []string{"state"}),
		CredentialFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_fetches_total",
			Help:      "Session credential requests by outcome.",
		}, []string{"outcome"}),
		SpeakErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speak_errors_total",
			Help:      "Lines the avatar failed to speak, by line kind.",
		}, []string{"line"}),
		KeepAlivePings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalive_pings_total",
			Help:      "Backend keep-alive pings by outcome.",
		}, []string{"outcome"}),
		DemoNavigations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demo_navigations_total",
			Help:      "Navigate-to-demo signals fired.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Host WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		TeardownLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "teardown_latency_ms",
			Help:      "Time stop() took to release the realtime connection, in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 1500, 2000, 3000},
		}),
	}
}

func (m *Metrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveCredentialFetch(outcome string) {
	if m == nil {
		return
	}
	m.CredentialFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSpeakError(line string) {
	if m == nil {
		return
	}
	m.SpeakErrors.WithLabelValues(line).Inc()
}

func (m *Metrics) ObserveKeepAlive(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.KeepAlivePings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDemoNavigation() {
	if m == nil {
		return
	}
	m.DemoNavigations.Inc()
}

func (m *Metrics) ObserveTeardown(d time.Duration) {
	if m == nil {
		return
	}
	m.TeardownLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveSessionEvent(event string, active int) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
