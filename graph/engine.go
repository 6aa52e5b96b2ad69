package graph

import (
	"context"

	"github.com/arclight-io/qflow/graph/emit"
	"github.com/arclight-io/qflow/sandbox"
	"github.com/arclight-io/qflow/store"
	"github.com/arclight-io/qflow/value"
)

// Engine is the TraversalEngine collaborator (spec.md §4.5): given a
// starting section and a request Context, it walks the schema graph until
// it finds an unanswered question, an action that returns immediately, or
// exhausts all traversable edges.
type Engine struct {
	gstore  store.GraphStore
	sandbox sandbox.ScriptSandbox
	cfg     engineConfig
}

// New builds an Engine against gstore and sbox, applying opts in order.
func New(gstore store.GraphStore, sbox sandbox.ScriptSandbox, opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return &Engine{gstore: gstore, sandbox: sbox, cfg: cfg}, nil
}

// OutcomeKind names the three-way terminal condition spec.md §4.5 defines.
// The response shape (spec.md §4.7) never carries this discriminator
// directly — it is fully reconstructible from the returned question plus
// the request Context's side-effect accumulators — but it is useful for
// logging and for tests that want to assert on "which of the three
// branches fired" without re-deriving it from the response fields.
type OutcomeKind string

const (
	OutcomeUnansweredQuestion OutcomeKind = "UnansweredQuestion"
	OutcomeAction             OutcomeKind = "Action"
	OutcomeCompleted          OutcomeKind = "Completed"
)

// ClassifyOutcome derives the OutcomeKind a completed Traverse call
// produced from its return value and the final Context state.
func ClassifyOutcome(question *Question, gctx *Context) OutcomeKind {
	if question != nil {
		return OutcomeUnansweredQuestion
	}
	if _, ok := gctx.NextSectionID(); ok {
		return OutcomeAction
	}
	if len(gctx.CreatedNodeIDs()) > 0 || gctx.Completed() {
		return OutcomeAction
	}
	return OutcomeCompleted
}

// Traverse runs the traversal algorithm starting at startingSectionID,
// mutating gctx with every side effect (resolved source node, cached
// variables, warnings, created ids, next section, completion) along the
// way. The returned *Question, when non-nil, is the next unanswered
// question the caller should present; a nil question with no error means
// either an action returned immediately or the graph was exhausted — gctx
// distinguishes the two.
func (e *Engine) Traverse(ctx context.Context, startingSectionID string, gctx *Context) (*Question, error) {
	section, err := e.ResolveSection(ctx, startingSectionID)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(gctx, e.gstore, e.sandbox, e.cfg.metrics, e.cfg.emitter, e.cfg.variableTimeoutMs, e.cfg.evalTimeoutMs)
	resolver.PreloadInputs()

	gctx.PushScope(section.Variables)
	defer gctx.PopScope()

	question, err := e.visitNode(ctx, section.SectionID, resolver, gctx)
	if err != nil {
		return nil, err
	}

	// Invariant 6's second disjunct: no edge was selected at all, so check
	// whether the anchor already carries a COMPLETED relationship to this
	// section rather than assuming the traversal's exhaustion means completion.
	if question == nil && !gctx.Completed() {
		completed, cerr := e.checkCompletionAnchor(ctx, gctx, startingSectionID)
		if cerr != nil {
			return nil, cerr
		}
		if completed {
			gctx.SetCompleted()
		}
	}

	e.emit(gctx, "", "traversal_complete", nil)
	return question, nil
}

// checkCompletionAnchor runs QueryCompleted against the current source node
// when one is resolved, falling back to the request's applicationId input
// (spec.md §9: the core must not assume either the source node or the
// Application entity is always the anchor — it tries the one actually
// available this request).
func (e *Engine) checkCompletionAnchor(ctx context.Context, gctx *Context, sectionID string) (bool, error) {
	anchorID := sourceNodeID(gctx)
	if anchorID == "" {
		if appID, ok := gctx.Inputs()["applicationId"]; ok {
			anchorID, _ = appID.AsString()
		}
	}
	if anchorID == "" {
		return false, nil
	}
	res, err := e.gstore.RunQuery(ctx, store.QueryCompleted,
		map[string]value.Value{"anchorId": value.String(anchorID), "sectionId": value.String(sectionID)},
		e.queryOpts(), nil)
	if err != nil {
		return false, e.classifyCoreFailure(err)
	}
	return len(res.Rows) > 0, nil
}

// emit raises an observability event if the engine has an Emitter attached
// via WithEmitter; a nil emitter is a silent no-op.
func (e *Engine) emit(gctx *Context, nodeID, msg string, meta map[string]interface{}) {
	if e.cfg.emitter == nil {
		return
	}
	e.cfg.emitter.Emit(emit.Event{TraceID: gctx.TraceID(), Step: gctx.NextStep(), NodeID: nodeID, Msg: msg, Meta: meta})
}

// ResolveSection resolves the latest-active version of the section
// identified by sectionID (spec.md §4.5 step 1). Exported so the
// Session/Response assembler can validate declared input parameters
// before a traversal begins (spec.md §4.7 step 1).
func (e *Engine) ResolveSection(ctx context.Context, sectionID string) (*Section, error) {
	n, err := e.resolveNode(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, newError(ErrorSectionNotFound, "no active version of section "+sectionID, nil)
	}
	s := sectionFromNode(*n)
	return &s, nil
}

// visitNode implements spec.md §4.5 steps 3-6 for the node currently at
// nodeID: enumerate outgoing edges, select the first truthy one, and
// dispatch on its target.
func (e *Engine) visitNode(ctx context.Context, nodeID string, resolver *Resolver, gctx *Context) (*Question, error) {
	edges, err := e.outgoingEdges(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	for _, edge := range edges {
		gctx.PushScope(edge.Variables)

		if !e.evaluateEdge(edge, resolver, gctx) {
			gctx.PopScope()
			continue
		}

		e.emit(gctx, edgeLabel(edge), "edge_selected", map[string]interface{}{"edge_kind": string(edge.Kind)})

		question, err := e.dispatchEdge(ctx, edge, resolver, gctx)
		gctx.PopScope()
		return question, err
	}

	// No edge matched: traversal ends here (spec.md §8 "Section with zero
	// outgoing edges → Completed"; the same applies to any node once its
	// edges are exhausted).
	return nil, nil
}

// evaluateEdge runs spec.md §4.5 step 4 (askWhen) and step 5 (sourceNode)
// for edge. A failure in either is recovered into a warning and the edge
// is treated as non-matching (spec.md §4.5 "edge-case policies"); it never
// returns a fatal error since only the canonical engine-issued queries and
// action bodies can fail the request outright.
func (e *Engine) evaluateEdge(edge Edge, resolver *Resolver, gctx *Context) bool {
	label := edgeLabel(edge)

	truthy, err := resolver.EvalAskWhen(label, edge.AskWhen)
	if err != nil {
		gctx.AddWarning(label, "askWhen: "+failureMessage(err))
		return false
	}
	if !truthy {
		return false
	}

	if edge.SourceNodeExpr == "" {
		return true
	}
	v, err := resolver.EvalSourceNode(label, edge.SourceNodeExpr)
	if err != nil {
		gctx.AddWarning(label, "sourceNode: "+failureMessage(err))
		gctx.ClearSourceNode()
		return false
	}
	gctx.SetSourceNode(v)
	return true
}

// dispatchEdge implements spec.md §4.5 step 6 for a selected edge.
func (e *Engine) dispatchEdge(ctx context.Context, edge Edge, resolver *Resolver, gctx *Context) (*Question, error) {
	switch edge.Target.Kind {
	case NodeKindQuestion:
		q := *edge.Target.Question
		answered, err := e.answered(ctx, sourceNodeID(gctx), q.QuestionID)
		if err != nil {
			return nil, err
		}
		if !answered {
			return &q, nil
		}
		gctx.PushScope(q.Variables)
		defer gctx.PopScope()
		return e.visitNode(ctx, q.QuestionID, resolver, gctx)

	case NodeKindAction:
		a := *edge.Target.Action
		if err := executeAction(ctx, gctx, resolver, e.gstore, a); err != nil {
			return nil, err
		}
		if a.ReturnImmediately {
			return nil, nil
		}
		return e.visitNode(ctx, a.ActionID, resolver, gctx)

	default:
		return nil, newError(ErrorInvalidRequest, "edge target has unrecognized kind", nil)
	}
}

func edgeTargetID(t EdgeTarget) string {
	switch t.Kind {
	case NodeKindQuestion:
		if t.Question != nil {
			return t.Question.QuestionID
		}
	case NodeKindAction:
		if t.Action != nil {
			return t.Action.ActionID
		}
	}
	return ""
}

func edgeLabel(e Edge) string {
	return e.From + "->" + edgeTargetID(e.Target)
}

func sourceNodeID(gctx *Context) string {
	n, ok := gctx.SourceNode().AsNode()
	if !ok {
		return ""
	}
	return stringProp(n.Properties, "id")
}

// resolveNode runs QueryResolveLatestActive (spec.md §4.5 step 1).
func (e *Engine) resolveNode(ctx context.Context, id string) (*value.Node, error) {
	res, err := e.gstore.RunQuery(ctx, store.QueryResolveLatestActive,
		map[string]value.Value{"id": value.String(id)}, e.queryOpts(), nil)
	if err != nil {
		return nil, e.classifyCoreFailure(err)
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	n, ok := res.Rows[0]["n"].AsNode()
	if !ok {
		return nil, newError(ErrorQueryError, "QueryResolveLatestActive did not return a node", nil)
	}
	return &n, nil
}

// outgoingEdges runs QueryOutgoingEdges (spec.md §4.5 step 3). Rows arrive
// already sorted by the backend; edges whose target the backend could not
// convert (malformed schema data) are silently skipped rather than failing
// the whole enumeration.
func (e *Engine) outgoingEdges(ctx context.Context, fromID string) ([]Edge, error) {
	res, err := e.gstore.RunQuery(ctx, store.QueryOutgoingEdges,
		map[string]value.Value{"fromId": value.String(fromID)}, e.queryOpts(), func(msg string) {
			e.cfg.metrics.recordTruncation()
		})
	if err != nil {
		return nil, e.classifyCoreFailure(err)
	}
	edges := make([]Edge, 0, len(res.Rows))
	for _, row := range res.Rows {
		edge, ok := edgeFromRow(row, fromID)
		if ok {
			edges = append(edges, edge)
		}
	}
	return edges, nil
}

// answered runs QueryAnswered, the canonical answered-ness check (spec.md
// §4.5 step 6, "Target is Question").
func (e *Engine) answered(ctx context.Context, sourceID, questionID string) (bool, error) {
	res, err := e.gstore.RunQuery(ctx, store.QueryAnswered,
		map[string]value.Value{"sourceId": value.String(sourceID), "questionId": value.String(questionID)},
		e.queryOpts(), nil)
	if err != nil {
		return false, e.classifyCoreFailure(err)
	}
	return len(res.Rows) > 0, nil
}

func (e *Engine) queryOpts() store.QueryOptions {
	return store.QueryOptions{TimeoutMs: e.cfg.queryTimeoutMs, RowCap: e.cfg.rowCap}
}

// classifyCoreFailure wraps a GraphStore failure raised by one of the
// engine's own canonical queries. Unlike variable/predicate evaluation,
// these are infrastructure calls the traversal cannot route around —
// version resolution, edge enumeration, and the answered-ness check are
// not schema-author expressions — so every kind surfaces as a fatal error
// rather than degrading to a warning.
func (e *Engine) classifyCoreFailure(err error) error {
	switch {
	case store.IsTimeout(err):
		return newError(ErrorUnavailable, "graph store query timed out", err)
	case store.IsQueryError(err):
		return newError(ErrorQueryError, "graph store query failed", err)
	default:
		return newError(ErrorUnavailable, "graph store unavailable", err)
	}
}
