package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics collects internal Prometheus instrumentation for a single
// traversal engine's requests. It is deliberately narrow: the host that
// embeds the engine owns exposing these over HTTP (metrics exporters are
// out of scope for the traversal core itself, per spec.md §1); this type
// only records what happened during traversal.
type EngineMetrics struct {
	variableEvalLatency *prometheus.HistogramVec
	variableTimeouts    prometheus.Counter
	securityViolations  prometheus.Counter
	rowCapTruncations   prometheus.Counter
	actionsExecuted     *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewEngineMetrics registers the traversal engine's metrics with registry.
// Pass prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func NewEngineMetrics(registry prometheus.Registerer) *EngineMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &EngineMetrics{
		enabled: true,
		variableEvalLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qflow",
			Name:      "variable_eval_latency_ms",
			Help:      "Variable/predicate evaluation duration in milliseconds, by dialect.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 1500, 5000},
		}, []string{"dialect"}),
		variableTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qflow",
			Name:      "variable_timeouts_total",
			Help:      "Variable/predicate evaluations that exceeded their timeout.",
		}),
		securityViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qflow",
			Name:      "sandbox_security_violations_total",
			Help:      "ScriptSandbox evaluations rejected for a forbidden operation.",
		}),
		rowCapTruncations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qflow",
			Name:      "row_cap_truncations_total",
			Help:      "GraphStore query results truncated at the row cap.",
		}),
		actionsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qflow",
			Name:      "actions_executed_total",
			Help:      "Actions executed during traversal, by actionType.",
		}, []string{"action_type"}),
	}
}

func (m *EngineMetrics) observeEval(dialect Dialect, d time.Duration) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.variableEvalLatency.WithLabelValues(string(dialect)).Observe(float64(d.Milliseconds()))
}

func (m *EngineMetrics) recordTimeout() {
	if m == nil || !m.isEnabled() {
		return
	}
	m.variableTimeouts.Inc()
}

func (m *EngineMetrics) recordSecurityViolation() {
	if m == nil || !m.isEnabled() {
		return
	}
	m.securityViolations.Inc()
}

func (m *EngineMetrics) recordTruncation() {
	if m == nil || !m.isEnabled() {
		return
	}
	m.rowCapTruncations.Inc()
}

func (m *EngineMetrics) recordAction(actionType ActionType) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.actionsExecuted.WithLabelValues(string(actionType)).Inc()
}

func (m *EngineMetrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable stops metric recording (useful for benchmarks/tests).
func (m *EngineMetrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes metric recording after Disable.
func (m *EngineMetrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
