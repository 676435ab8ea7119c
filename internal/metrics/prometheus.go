package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the assistant service
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionsReaped  prometheus.Counter
	SessionDuration prometheus.Histogram
	FramesReceived  *prometheus.CounterVec
	ProtocolErrors  prometheus.Counter

	// Pipeline metrics
	Turns         *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	DegradedTurns *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "assistant_active_sessions",
			Help: "Current number of connected assistant sessions",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "assistant_sessions_opened_total",
			Help: "Total number of sessions opened",
		}),
		SessionsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "assistant_sessions_reaped_total",
			Help: "Total number of sessions closed for inactivity",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_session_duration_seconds",
			Help:    "Lifetime of assistant sessions",
			Buckets: []float64{1, 10, 30, 60, 300, 600, 1800, 3600},
		}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_frames_received_total",
			Help: "Inbound frames by kind",
		}, []string{"kind"}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "assistant_protocol_errors_total",
			Help: "Sessions closed because of an unrecognized frame",
		}),

		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Turns by outcome",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assistant_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_stage_failures_total",
			Help: "Pipeline stage failures, timeouts included",
		}, []string{"stage"}),
		DegradedTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_degraded_turns_total",
			Help: "Turns answered without retrieval context or without audio",
		}, []string{"stage"}),
	}
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) ObserveTurn(outcome string) {
	m.Turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDegraded(stage string) {
	m.DegradedTurns.WithLabelValues(stage).Inc()
}

// SessionOpened / SessionClosed track the active session gauge.
func (m *Metrics) SessionOpened() {
	m.ActiveSessions.Inc()
	m.SessionsOpened.Inc()
}

func (m *Metrics) SessionClosed(lifetime time.Duration) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(lifetime.Seconds())
}
