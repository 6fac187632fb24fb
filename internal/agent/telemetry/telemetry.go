package telemetry

import (
	"log"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/biocortex/hypothesis/config"
)

// Telemetry provides monitoring and oracle cost tracking for the agent.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	registry    *prometheus.Registry
	costTracker *CostTracker

	turnsTotal     *prometheus.CounterVec
	modeDecisions  *prometheus.CounterVec
	planSteps      prometheus.Histogram
	stepOutcomes   *prometheus.CounterVec
	stepRetries    prometheus.Counter
	oracleRequests *prometheus.CounterVec
	oracleTokens   *prometheus.CounterVec
}

// CostTracker tracks oracle costs across models and call sites.
type CostTracker struct {
	mu          sync.RWMutex
	ModelCosts  map[string]float64
	TotalCost   float64
	TotalTokens int64
}

// NewTelemetry creates a telemetry instance with its own prometheus registry.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Telemetry{
		config:      cfg,
		logger:      log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		registry:    reg,
		costTracker: &CostTracker{ModelCosts: make(map[string]float64)},
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hypothesis_turns_total",
			Help: "Turns processed, labelled by operating mode.",
		}, []string{"mode"}),
		modeDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hypothesis_mode_decisions_total",
			Help: "Mode classifier decisions, including ambiguous fallbacks.",
		}, []string{"decision"}),
		planSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hypothesis_plan_steps",
			Help:    "Number of steps per generated plan.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		stepOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hypothesis_step_outcomes_total",
			Help: "Plan step outcomes per tool.",
		}, []string{"tool", "outcome"}),
		stepRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "hypothesis_step_retries_total",
			Help: "Regeneration attempts beyond the first per step.",
		}),
		oracleRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hypothesis_oracle_requests_total",
			Help: "Oracle completion requests per call site.",
		}, []string{"site", "status"}),
		oracleTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hypothesis_oracle_tokens_total",
			Help: "Oracle token usage per model.",
		}, []string{"model", "direction"}),
	}
}

// Handler exposes the prometheus registry for the /metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// RecordTurn records a completed turn in the given mode.
func (t *Telemetry) RecordTurn(mode string) {
	if !t.config.Enabled {
		return
	}
	t.turnsTotal.WithLabelValues(mode).Inc()
}

// RecordModeDecision records a classifier decision ("conversational",
// "research", or "ambiguous").
func (t *Telemetry) RecordModeDecision(decision string) {
	if !t.config.Enabled {
		return
	}
	t.modeDecisions.WithLabelValues(decision).Inc()
}

// RecordPlan records the size of a validated plan.
func (t *Telemetry) RecordPlan(steps int) {
	if !t.config.Enabled {
		return
	}
	t.planSteps.Observe(float64(steps))
}

// RecordStep records a step outcome and its retry count.
func (t *Telemetry) RecordStep(tool string, success bool, attempts int) {
	if !t.config.Enabled {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	t.stepOutcomes.WithLabelValues(tool, outcome).Inc()
	if attempts > 1 {
		t.stepRetries.Add(float64(attempts - 1))
	}
}

// RecordOracleCall records one oracle request with token usage and cost.
func (t *Telemetry) RecordOracleCall(site, model string, inputTokens, outputTokens int64, cost float64, err error) {
	if !t.config.Enabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	t.oracleRequests.WithLabelValues(site, status).Inc()
	t.oracleTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	t.oracleTokens.WithLabelValues(model, "output").Add(float64(outputTokens))

	if t.config.CostTracking {
		t.costTracker.mu.Lock()
		t.costTracker.ModelCosts[model] += cost
		t.costTracker.TotalCost += cost
		t.costTracker.TotalTokens += inputTokens + outputTokens
		t.costTracker.mu.Unlock()
	}
}

// TotalCost returns the accumulated oracle spend.
func (t *Telemetry) TotalCost() float64 {
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()
	return t.costTracker.TotalCost
}

// TotalTokens returns the accumulated oracle token usage.
func (t *Telemetry) TotalTokens() int64 {
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()
	return t.costTracker.TotalTokens
}
