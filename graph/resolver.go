package graph

import (
	"context"
	"strings"
	"time"

	"github.com/arclight-io/qflow/graph/emit"
	"github.com/arclight-io/qflow/sandbox"
	"github.com/arclight-io/qflow/store"
	"github.com/arclight-io/qflow/template"
	"github.com/arclight-io/qflow/value"
)

// Resolver is the VariableResolver collaborator (spec.md §4.4): it owns a
// request's Context and lazily evaluates named variable definitions,
// section/edge askWhen predicates, and sourceNode expressions through the
// same render-then-dispatch path, caching every named variable's result at
// most once.
type Resolver struct {
	ctx     *Context
	gstore  store.GraphStore
	sandbox sandbox.ScriptSandbox
	metrics *EngineMetrics
	emitter emit.Emitter

	variableTimeoutMs int
	evalTimeoutMs     int
}

// NewResolver builds a Resolver bound to ctx, gstore, and sbox. gstore and
// sbox answer the cypher:/python: halves of every expression the resolver
// ever evaluates. metrics and emitter may both be nil. variableTimeoutMs/
// evalTimeoutMs are the engine's configured defaults
// (WithDefaultVariableTimeoutMs/WithDefaultEvalTimeoutMs); zero falls back
// to the spec's own defaults.
func NewResolver(ctx *Context, gstore store.GraphStore, sbox sandbox.ScriptSandbox, metrics *EngineMetrics, emitter emit.Emitter, variableTimeoutMs, evalTimeoutMs int) *Resolver {
	if variableTimeoutMs <= 0 {
		variableTimeoutMs = DefaultVariableTimeoutMs
	}
	if evalTimeoutMs <= 0 {
		evalTimeoutMs = DefaultEvalTimeoutMs
	}
	return &Resolver{ctx: ctx, gstore: gstore, sandbox: sbox, metrics: metrics, emitter: emitter, variableTimeoutMs: variableTimeoutMs, evalTimeoutMs: evalTimeoutMs}
}

const reservedSourceNode = "sourceNode"
const reservedCreatedNodeIds = "createdNodeIds"

// Lookup implements template.Lookup and sandbox.Lookup: the single read
// function spec.md §9 describes, backed by an ordered chain of maps
// (variable cache/lazy-eval → inputs → reserved slots). Passing Lookup
// itself as the callback into template.Render and ScriptSandbox.Eval is
// what makes variable references inside a variable's own body resolve
// lazily rather than requiring an eagerly flattened context map.
func (r *Resolver) Lookup(path string) (value.Value, bool) {
	segs, err := value.ParsePath(path)
	if err != nil || len(segs) == 0 {
		return value.Null(), false
	}
	root := segs[0]
	rest := segs[1:]

	if v, ok := r.Get(root); ok {
		return pathOrWhole(v, rest)
	}
	if v, ok := r.ctx.inputs[root]; ok {
		return pathOrWhole(v, rest)
	}
	switch root {
	case reservedSourceNode:
		return pathOrWhole(r.ctx.SourceNode(), rest)
	case reservedCreatedNodeIds:
		return pathOrWhole(value.List(r.ctx.CreatedNodeIDs()), rest)
	}
	return value.Null(), false
}

func pathOrWhole(v value.Value, rest []string) (value.Value, bool) {
	if len(rest) == 0 {
		return v, true
	}
	return v.Path(rest)
}

// Get returns name's cached value if present; otherwise it searches the
// scope stack for name's definition, evaluates it, caches the result
// (success, or null-on-failure), and returns it. ok is false only when name
// is neither cached nor defined in any scope currently on the stack — i.e.
// it is not a variable at all, and Lookup should fall through to inputs or
// reserved names.
func (r *Resolver) Get(name string) (value.Value, bool) {
	if v, ok := r.ctx.CacheGet(name); ok {
		return v, true
	}
	def, ok := r.ctx.FindDefinition(name)
	if !ok {
		return value.Null(), false
	}
	parsed, raw := r.evalDefinition(name, def)
	r.ctx.CacheSet(name, parsed, raw)
	return parsed, true
}

// PreloadInputs seeds the cache with the input-parameter map as read-only
// entries, so a variable named the same as an input parameter never
// re-evaluates it (spec.md §4.4 "preload_inputs"). Inputs are also reached
// directly via Lookup, so preloading is only needed when a schema author
// defines a variable under the same name purely to make it visible in vars.
func (r *Resolver) PreloadInputs() {
	for k, v := range r.ctx.inputs {
		if _, ok := r.ctx.CacheGet(k); !ok {
			r.ctx.CacheSet(k, v, v)
		}
	}
}

// evalDefinition implements spec.md §4.4's eval_definition: render the
// expression body, dispatch on dialect, apply the per-variable timeout,
// and on success parse a JSON-string result into its structured form.
func (r *Resolver) evalDefinition(name string, def VariableDef) (parsed, raw value.Value) {
	expr := def.Expression()
	if expr.Body == "" {
		r.ctx.AddWarning(name, "variable has no cypher or python body")
		return value.Null(), value.Null()
	}
	timeoutMs := def.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = r.variableTimeoutMs
	}
	v, _, err := r.evalExpr(context.Background(), name, expr, timeoutMs)
	if err != nil {
		r.ctx.AddWarning(name, failureMessage(err))
		if store.IsTimeout(err) || sandbox.IsTimeout(err) {
			r.emit(name, "variable_timeout", map[string]interface{}{"dialect": string(expr.Dialect)})
		}
		return value.Null(), value.Null()
	}
	r.emit(name, "variable_eval", map[string]interface{}{"dialect": string(expr.Dialect)})
	if s, ok := v.AsString(); ok {
		if p, ok := value.FromJSON(s); ok {
			return p, v
		}
	}
	return v, v
}

// emit raises an observability event if the resolver has an Emitter
// attached; a nil emitter is a silent no-op.
func (r *Resolver) emit(nodeID, msg string, meta map[string]interface{}) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(emit.Event{TraceID: r.ctx.TraceID(), Step: r.ctx.NextStep(), NodeID: nodeID, Msg: msg, Meta: meta})
}

// EvalAskWhen evaluates a predicate string (spec.md §4.5 step 4a). Absent
// or empty predicates are truthy by convention. A cypher: predicate is
// truthy iff its query returns at least one row; a python: predicate
// follows the sandbox dialect's value-truthiness rule.
func (r *Resolver) EvalAskWhen(label, raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return true, nil
	}
	expr := ParseExpression(raw)
	v, rowCount, err := r.evalExpr(context.Background(), label, expr, r.evalTimeoutMs)
	if err != nil {
		return false, err
	}
	if expr.Dialect == DialectCypher {
		return rowCount >= 1, nil
	}
	return v.Truthy(), nil
}

// EvalSourceNode evaluates a sourceNode expression (spec.md §4.5 step 5).
func (r *Resolver) EvalSourceNode(label, raw string) (value.Value, error) {
	expr := ParseExpression(raw)
	v, _, err := r.evalExpr(context.Background(), label, expr, r.evalTimeoutMs)
	return v, err
}

// evalExpr renders expr.Body against Lookup, then runs it under the
// collaborator its dialect selects. For cypher it also reports the row
// count, since askWhen's cypher truthiness rule is row-count-based rather
// than value-based.
func (r *Resolver) evalExpr(ctx context.Context, label string, expr Expression, timeoutMs int) (value.Value, int, error) {
	rendered, warnings := template.Render(expr.Body, r.Lookup)
	for _, w := range warnings {
		r.ctx.AddWarning(label, "template: unresolved path "+w.Path+": "+w.Message)
	}

	start := time.Now()
	defer func() { r.metrics.observeEval(expr.Dialect, time.Since(start)) }()

	switch expr.Dialect {
	case DialectCypher:
		res, err := r.gstore.RunQuery(ctx, rendered, nil, store.QueryOptions{TimeoutMs: timeoutMs}, func(msg string) {
			r.ctx.AddWarning(label, msg)
			r.metrics.recordTruncation()
		})
		if err != nil {
			r.recordFailure(err)
			return value.Null(), 0, err
		}
		return collapseRows(res.Rows), len(res.Rows), nil
	default:
		v, err := r.sandbox.Eval(rendered, r.Lookup, timeoutMs)
		if err != nil {
			r.recordFailure(err)
			return value.Null(), 0, err
		}
		truthy := 0
		if v.Truthy() {
			truthy = 1
		}
		return v, truthy, nil
	}
}

func (r *Resolver) recordFailure(err error) {
	switch {
	case store.IsTimeout(err), sandbox.IsTimeout(err):
		r.metrics.recordTimeout()
	case sandbox.IsSecurityViolation(err):
		r.metrics.recordSecurityViolation()
	}
}

// collapseRows turns a GraphStore result into a single Value for variable
// and expression results: zero rows collapse to Null, a single row with a
// single column collapses to that column's value, and anything wider
// becomes a list of row maps.
func collapseRows(rows []store.Row) value.Value {
	if len(rows) == 0 {
		return value.Null()
	}
	if len(rows) == 1 && len(rows[0]) == 1 {
		for _, v := range rows[0] {
			return v
		}
	}
	out := make([]value.Value, len(rows))
	for i, row := range rows {
		m := make(map[string]value.Value, len(row))
		for k, v := range row {
			m[k] = v
		}
		out[i] = value.Map(m)
	}
	return value.List(out)
}

// failureMessage renders a store/sandbox failure for a Warning's Message
// field, classifying the well-known failure kinds spec.md §7 names.
func failureMessage(err error) string {
	switch {
	case store.IsTimeout(err), sandbox.IsTimeout(err):
		return "timeout: " + err.Error()
	case sandbox.IsSecurityViolation(err):
		return "security violation: " + err.Error()
	case store.IsQueryError(err), store.IsUnavailable(err):
		return err.Error()
	default:
		return err.Error()
	}
}
