package graph

import (
	"time"

	"github.com/arclight-io/qflow/graph/emit"
)

// Option is a functional option for configuring an Engine, following the
// same engineConfig-indirection pattern the rest of this package's
// collaborators use: options are validated and composed before being
// applied, rather than mutating the Engine directly.
type Option func(*engineConfig) error

// engineConfig collects options before New applies them to an Engine.
type engineConfig struct {
	rowCap            int
	queryTimeoutMs    int
	variableTimeoutMs int
	evalTimeoutMs     int
	metrics           *EngineMetrics
	emitter           emit.Emitter
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		variableTimeoutMs: DefaultVariableTimeoutMs,
		evalTimeoutMs:     DefaultEvalTimeoutMs,
	}
}

// WithRowCap overrides the row cap of the engine's own canonical GraphStore
// queries (section resolution, edge enumeration, answered and completed
// checks). Variable, predicate and action-body queries do not take it and
// always run under the GraphStore's default cap. Zero or negative falls back
// to the GraphStore's own default (spec.md §4.1's 100-row cap).
func WithRowCap(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.rowCap = n
		return nil
	}
}

// WithQueryTimeoutMs overrides the per-call timeout for the engine's own
// canonical queries (version resolution, edge enumeration, answered-ness,
// completion checks) — distinct from variable and askWhen/sourceNode
// evaluation timeouts, configured per-definition or via
// WithDefaultVariableTimeoutMs/WithDefaultEvalTimeoutMs.
func WithQueryTimeoutMs(ms int) Option {
	return func(cfg *engineConfig) error {
		cfg.queryTimeoutMs = ms
		return nil
	}
}

// WithDefaultVariableTimeoutMs overrides the default applied to a variable
// definition with no explicit timeoutMs (spec.md §3 default 500ms).
func WithDefaultVariableTimeoutMs(ms int) Option {
	return func(cfg *engineConfig) error {
		cfg.variableTimeoutMs = ms
		return nil
	}
}

// WithDefaultEvalTimeoutMs overrides the default applied to ad-hoc
// evaluator calls embedded in askWhen/sourceNode resolution (spec.md §5
// default 1500ms).
func WithDefaultEvalTimeoutMs(ms int) Option {
	return func(cfg *engineConfig) error {
		cfg.evalTimeoutMs = ms
		return nil
	}
}

// WithDefaultNodeTimeout is a convenience wrapper for hosts that think in
// time.Duration rather than milliseconds; it configures the same default
// evaluator-call budget as WithDefaultEvalTimeoutMs.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return WithDefaultEvalTimeoutMs(int(d.Milliseconds()))
}

// WithMetrics attaches an EngineMetrics instrumentation sink. Metrics are
// internal counters/histograms only — exposing them over an HTTP endpoint
// is the embedding host's responsibility, not the traversal core's.
func WithMetrics(m *EngineMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithEmitter attaches an observability Emitter. The engine raises
// edge_selected, variable_eval, variable_timeout, action_executed, and
// traversal_complete events against it as a request runs (emit.Event); a
// nil emitter (the default) means no events are raised at all.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		cfg.emitter = e
		return nil
	}
}
