package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "synquot"

// EngineMetrics exposes counters/histograms for the quotation engine and its
// LLM gateway.
type EngineMetrics struct {
	requestsTotal   *prometheus.CounterVec
	attemptsTotal   *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	fallbackApplied *prometheus.CounterVec
	validationFails prometheus.Counter
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Processed chat messages by intent and reply source",
		}, []string{"intent", "source"}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "LLM gateway attempts by model and outcome",
		}, []string{"model", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of individual LLM backend calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		}, []string{"model", "status"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens reported by the backend",
		}, []string{"model", "kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),
		fallbackApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fallback_total",
			Help:      "Rule-based fallback applications by intent",
		}, []string{"intent"}),
		validationFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "validation_failures_total",
			Help:      "Model-produced quotations discarded as invalid",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.attemptsTotal, m.llmLatency, m.tokensTotal, m.cacheLookups, m.fallbackApplied, m.validationFails)
	return m
}

func (m *EngineMetrics) ObserveRequest(intent, source string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(intent, source).Inc()
}

// ObserveAttempt records one backend call. Outcome is a short tag such as
// "ok", "not_found", "unauthorized", "payment_required" or "error".
func (m *EngineMetrics) ObserveAttempt(model, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(model, outcome).Inc()
	status := "ok"
	if outcome != "ok" {
		status = "error"
	}
	m.llmLatency.WithLabelValues(model, status).Observe(seconds)
}

func (m *EngineMetrics) AddTokens(model string, input, output int) {
	if m == nil {
		return
	}
	if input > 0 {
		m.tokensTotal.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		m.tokensTotal.WithLabelValues(model, "output").Add(float64(output))
	}
}

func (m *EngineMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) ObserveFallback(intent string) {
	if m == nil {
		return
	}
	m.fallbackApplied.WithLabelValues(intent).Inc()
}

func (m *EngineMetrics) ObserveValidationFailure() {
	if m == nil {
		return
	}
	m.validationFails.Inc()
}
