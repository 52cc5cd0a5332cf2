package triage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/intake/internal/classify"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	LLMCallsTotal      *prometheus.CounterVec
	LLMDuration        *prometheus.HistogramVec
	OutcomesTotal      *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	Confidence         prometheus.Histogram
	ClarifyRounds      prometheus.Histogram
	BusyRejected       prometheus.Counter
	SessionsSwept      prometheus.Counter
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_events_total",
			Help: "Total conversation events by event type and result.",
		}, []string{"event", "result"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_llm_calls_total",
			Help: "Total LLM provider calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}, []string{"purpose"}),
		OutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_outcomes_total",
			Help: "Total resolved sessions by outcome.",
		}, []string{"outcome"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_validation_failures_total",
			Help: "Total rejected classifier replies by failure kind.",
		}, []string{"kind"}),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_classification_confidence",
			Help:    "Confidence of validated classifications.",
			Buckets: []float64{0.25, 0.5, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1},
		}),
		ClarifyRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_clarification_rounds",
			Help:    "Clarification rounds used per resolved session.",
			Buckets: prometheus.LinearBuckets(0, 1, 6), // 0 .. 5
		}),
		BusyRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_busy_rejected_total",
			Help: "Events rejected because the session was already processing one.",
		}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_swept_total",
			Help: "Idle sessions removed by the janitor.",
		}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.LLMCallsTotal,
		m.LLMDuration,
		m.OutcomesTotal,
		m.ValidationFailures,
		m.Confidence,
		m.ClarifyRounds,
		m.BusyRejected,
		m.SessionsSwept,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnLLMCall: func(purpose Purpose, duration float64, errKind LLMErrorKind) {
			outcome := "success"
			if errKind != "" {
				outcome = string(errKind)
			}
			m.LLMCallsTotal.WithLabelValues(string(purpose), outcome).Inc()
			m.LLMDuration.WithLabelValues(string(purpose)).Observe(duration)
		},
		OnClassification: func(r classify.Result) {
			m.Confidence.Observe(r.Confidence)
		},
		OnValidationError: func(kind classify.Kind) {
			m.ValidationFailures.WithLabelValues(string(kind)).Inc()
		},
		OnResolved: func(outcome OutcomeKind, attemptsUsed int) {
			m.OutcomesTotal.WithLabelValues(string(outcome)).Inc()
			m.ClarifyRounds.Observe(float64(attemptsUsed))
		},
	}
}

// eventResult labels the outcome of one Service.Handle call.
func eventResult(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errorInfo(err).Kind)
}
