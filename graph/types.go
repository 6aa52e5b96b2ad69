// Package graph implements the traversal core: given a starting section and
// a set of input parameters, it walks a versioned schema graph of sections,
// questions, actions, and the edges connecting them until it finds the next
// unanswered question, runs an action with return semantics, or exhausts
// the graph, and shapes a JSON-ready response describing the outcome.
package graph

import "strings"

// NodeKind discriminates the four vertex kinds the traversal core
// understands. Applicant/Application/etc. domain vertices are opaque to
// the engine and never constructed as a Node here — they pass through as
// value.Node source-node handles only.
type NodeKind string

const (
	NodeKindSection   NodeKind = "Section"
	NodeKindQuestion  NodeKind = "Question"
	NodeKindAction    NodeKind = "Action"
	NodeKindDatapoint NodeKind = "Datapoint"
)

// ActionType discriminates the three action behaviors spec.md §3 names,
// plus NoOp, an additive fourth kind: a schema-authoring convenience for an
// action node that exists purely to branch (via its own askWhen-gated
// outgoing edges) without itself creating nodes, redirecting, or
// completing anything. A NoOp's body, if any, is ignored.
type ActionType string

const (
	ActionCreatePropertyNode ActionType = "CreatePropertyNode"
	ActionGotoSection        ActionType = "GotoSection"
	ActionMarkSectionComplete ActionType = "MarkSectionComplete"
	ActionNoOp               ActionType = "NoOp"
)

// VariableDef is a named, lazily-evaluated expression attached to a
// section, edge, or action (spec.md §3). Exactly one of Cypher or Python
// should be populated; whichever is non-empty selects the evaluator.
type VariableDef struct {
	Name      string
	Cypher    string
	Python    string
	TimeoutMs int
}

// Dialect selects which collaborator answers an expression.
type Dialect string

const (
	DialectCypher Dialect = "cypher"
	DialectPython Dialect = "python"
)

// Expression pairs a dialect with the body to evaluate under it.
type Expression struct {
	Dialect Dialect
	Body    string
}

// Expression resolves which field of the definition is populated.
// A definition with neither field set yields a cypher Expression with an
// empty Body; callers should treat that as "no definition" and skip
// evaluation.
func (d VariableDef) Expression() Expression {
	if d.Python != "" {
		return Expression{Dialect: DialectPython, Body: d.Python}
	}
	return Expression{Dialect: DialectCypher, Body: d.Cypher}
}

// Section is the unit a traversal is invoked against (spec.md §3).
type Section struct {
	SectionID   string
	Name        string
	InputParams []string
	Variables   []VariableDef
}

// Question is a node that, when unanswered by the current source, is the
// engine's returned next step. JSON tags shape the response's "question"
// field (spec.md §6: "the contract is only that question.questionId and
// question.prompt are present").
type Question struct {
	QuestionID  string        `json:"questionId"`
	Prompt      string        `json:"prompt"`
	FieldID     string        `json:"fieldId"`
	DataType    string        `json:"dataType"`
	OrderInForm int           `json:"orderInForm"`
	Variables   []VariableDef `json:"-"`
}

// Action is a node whose body causes a side effect when traversed.
type Action struct {
	ActionID          string
	ActionType        ActionType
	Body              string
	NextSectionID     string
	Returns           []string
	ReturnImmediately bool
	Variables         []VariableDef
	SourceNode        string
}

// The defaults spec.md §3/§4.4 assign when a definition or call site does
// not override them.
const (
	DefaultVariableTimeoutMs = 500
	DefaultEvalTimeoutMs     = 1500
)

// ParseExpression splits a raw askWhen/sourceNode string into its dialect
// and body, recognizing an explicit "cypher:"/"python:" prefix. A string
// with neither prefix is treated as python — askWhen/sourceNode strings in
// practice are short boolean/scalar expressions, not queries, and the
// sandbox is the cheaper and safer default evaluator for an unmarked body.
func ParseExpression(raw string) Expression {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, "cypher:"):
		return Expression{Dialect: DialectCypher, Body: strings.TrimSpace(strings.TrimPrefix(trimmed, "cypher:"))}
	case strings.HasPrefix(trimmed, "python:"):
		return Expression{Dialect: DialectPython, Body: strings.TrimSpace(strings.TrimPrefix(trimmed, "python:"))}
	default:
		return Expression{Dialect: DialectPython, Body: trimmed}
	}
}
