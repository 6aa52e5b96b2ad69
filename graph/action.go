package graph

import (
	"context"
	"strings"

	"github.com/arclight-io/qflow/store"
	"github.com/arclight-io/qflow/template"
)

// executeAction runs action per spec.md §4.6, merging its side effects into
// gctx. Unlike variable/predicate evaluation, a GraphStore failure raised
// here is not recovered into a warning — action side effects are meant to
// be observable, so the failure is surfaced as a graph Error (spec.md §7).
func executeAction(ctx context.Context, gctx *Context, resolver *Resolver, gstore store.GraphStore, action Action) error {
	gctx.PushScope(action.Variables)
	defer gctx.PopScope()
	resolver.metrics.recordAction(action.ActionType)
	resolver.emit(action.ActionID, "action_executed", map[string]interface{}{"action_type": string(action.ActionType)})

	if action.SourceNode != "" {
		v, err := resolver.EvalSourceNode(action.ActionID, action.SourceNode)
		if err != nil {
			gctx.AddWarning(action.ActionID, "sourceNode: "+failureMessage(err))
			gctx.ClearSourceNode()
		} else {
			gctx.SetSourceNode(v)
		}
	}

	switch action.ActionType {
	case ActionCreatePropertyNode:
		return runCreatePropertyNode(ctx, gctx, resolver, gstore, action)
	case ActionGotoSection:
		runGotoSection(gctx, resolver, action)
		return nil
	case ActionMarkSectionComplete:
		return runMarkSectionComplete(ctx, gctx, resolver, gstore, action)
	case ActionNoOp:
		return nil
	default:
		return newError(ErrorInvalidRequest, "unknown actionType "+string(action.ActionType), nil)
	}
}

func runCreatePropertyNode(ctx context.Context, gctx *Context, resolver *Resolver, gstore store.GraphStore, action Action) error {
	rendered, warnings := template.Render(action.Body, resolver.Lookup)
	for _, w := range warnings {
		gctx.AddWarning(action.ActionID, "template: unresolved path "+w.Path+": "+w.Message)
	}
	res, err := gstore.RunQuery(ctx, rendered, nil, store.QueryOptions{TimeoutMs: resolver.evalTimeoutMs}, func(msg string) {
		gctx.AddWarning(action.ActionID, msg)
	})
	if err != nil {
		return actionFailure(action.ActionID, err)
	}
	for _, row := range res.Rows {
		if id, ok := row["createdId"]; ok {
			gctx.AppendCreatedNodeIDs(id)
		}
	}
	return nil
}

func runGotoSection(gctx *Context, resolver *Resolver, action Action) {
	raw := action.NextSectionID
	if raw == "" {
		return
	}
	rendered, warnings := template.Render(raw, resolver.Lookup)
	for _, w := range warnings {
		gctx.AddWarning(action.ActionID, "template: unresolved path "+w.Path+": "+w.Message)
	}
	gctx.SetNextSectionID(unquoteJSONString(rendered))
}

func runMarkSectionComplete(ctx context.Context, gctx *Context, resolver *Resolver, gstore store.GraphStore, action Action) error {
	rendered, warnings := template.Render(action.Body, resolver.Lookup)
	for _, w := range warnings {
		gctx.AddWarning(action.ActionID, "template: unresolved path "+w.Path+": "+w.Message)
	}
	_, err := gstore.RunQuery(ctx, rendered, nil, store.QueryOptions{TimeoutMs: resolver.evalTimeoutMs}, func(msg string) {
		gctx.AddWarning(action.ActionID, msg)
	})
	if err != nil {
		return actionFailure(action.ActionID, err)
	}
	gctx.SetCompleted()
	return nil
}

// unquoteJSONString strips a single layer of JSON string quoting, since a
// templated nextSectionId ("{{ someVar }}") is rendered as a JSON literal
// (e.g. `"SEC_X"`) rather than the bare section id.
func unquoteJSONString(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

func actionFailure(actionID string, err error) *Error {
	switch {
	case store.IsTimeout(err):
		return newError(ErrorUnavailable, "action "+actionID+" body timed out", err)
	case store.IsUnavailable(err):
		return newError(ErrorUnavailable, "graph store unavailable", err)
	default:
		return newError(ErrorQueryError, "action "+actionID+" body failed", err)
	}
}
