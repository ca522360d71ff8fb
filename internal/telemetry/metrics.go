package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for querysmith.
type Metrics struct {
	RunTotal             *prometheus.CounterVec
	RunDurationMs        *prometheus.HistogramVec
	ModelCallTotal       *prometheus.CounterVec
	ModelCallDurationMs  *prometheus.HistogramVec
	TokensTotal          *prometheus.CounterVec
	RepairTotal          *prometheus.CounterVec
	ReviewTotal          *prometheus.CounterVec
	CompletionIterations *prometheus.HistogramVec
	FilterActionTotal    *prometheus.CounterVec
	RateLimitHitTotal    *prometheus.CounterVec
	ProviderCircuitState *prometheus.GaugeVec
	CircuitTransitions   *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "querysmith_run_total",
			Help: "Pipeline runs by mode and outcome.",
		}, []string{"mode", "outcome"}),

		RunDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "querysmith_run_duration_ms",
			Help:    "End-to-end pipeline duration in milliseconds.",
			Buckets: []float64{5, 50, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"mode"}),

		ModelCallTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "querysmith_model_call_total",
			Help: "Language model calls by purpose, provider and status.",
		}, []string{"purpose", "provider", "status"}),

		ModelCallDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "querysmith_model_call_duration_ms",
			Help:    "Language model call latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"purpose", "provider"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "querysmith_tokens_total",
			Help: "Tokens consumed by model calls.",
		}, []string{"provider", "direction"}),

		RepairTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "querysmith_repair_total",
			Help: "Repair calls issued for unparseable model output.",
		}, []string{"mode", "outcome"}),

		ReviewTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "querysmith_review_total",
			Help: "Review pass outcomes.",
		}, []string{"outcome"}),

		CompletionIterations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "querysmith_completion_iterations",
			Help:    "Continuation calls issued per completion loop.",
			Buckets: []float64{0, 1, 2, 3, 5},
		}, []string{"mode", "converged"}),

		FilterActionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "querysmith_filter_action_total",
			Help: "Content guard actions taken.",
		}, []string{"filter", "action"}),

		RateLimitHitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "querysmith_rate_limit_hit_total",
			Help: "Requests refused by rate limits or quota.",
		}, []string{"dimension"}),

		ProviderCircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "querysmith_provider_circuit_state",
			Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open).",
		}, []string{"provider"}),

		CircuitTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "querysmith_provider_circuit_transitions_total",
			Help: "Circuit breaker state changes per provider.",
		}, []string{"provider", "to"}),
	}
}

// RecordCircuitTransition sets the provider's state gauge and counts the
// change. state is the numeric value of the new state.
func (m *Metrics) RecordCircuitTransition(provider, to string, state int) {
	m.ProviderCircuitState.WithLabelValues(provider).Set(float64(state))
	m.CircuitTransitions.WithLabelValues(provider, to).Inc()
}

// RecordRun records the outcome of one pipeline run.
func (m *Metrics) RecordRun(mode, outcome string, durationMs float64) {
	m.RunTotal.WithLabelValues(mode, outcome).Inc()
	m.RunDurationMs.WithLabelValues(mode).Observe(durationMs)
}

// RecordModelCall records one provider call and its token usage.
func (m *Metrics) RecordModelCall(labels ModelCallLabels) {
	m.ModelCallTotal.WithLabelValues(labels.Purpose, labels.Provider, labels.Status).Inc()
	m.ModelCallDurationMs.WithLabelValues(labels.Purpose, labels.Provider).Observe(labels.DurationMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Provider, "prompt").Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Provider, "completion").Add(float64(labels.CompletionTokens))
	}
}

func (m *Metrics) RecordRepair(mode, outcome string) {
	m.RepairTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) RecordReview(outcome string) {
	m.ReviewTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCompletion(mode string, iterations int, converged bool) {
	c := "false"
	if converged {
		c = "true"
	}
	m.CompletionIterations.WithLabelValues(mode, c).Observe(float64(iterations))
}

// RecordFilterAction records a filter action metric.
func (m *Metrics) RecordFilterAction(filter, action string) {
	m.FilterActionTotal.WithLabelValues(filter, action).Inc()
}

func (m *Metrics) RecordRateLimitHit(dimension string) {
	m.RateLimitHitTotal.WithLabelValues(dimension).Inc()
}

// ModelCallLabels holds the label values for recording a model call.
type ModelCallLabels struct {
	Purpose          string
	Provider         string
	Status           string
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
}
