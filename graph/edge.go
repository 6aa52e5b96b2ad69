package graph

// EdgeKind discriminates the two edge kinds the traversal core enumerates
// (spec.md §3).
type EdgeKind string

const (
	EdgeKindPrecedes EdgeKind = "PRECEDES"
	EdgeKindTriggers EdgeKind = "TRIGGERS"
)

// EdgeTarget discriminates which concrete node kind an Edge points to. A
// TraversalEngine dispatches on Kind rather than on a predicate-routed
// generic state, since the next hop is a property of the schema graph
// itself, not of a workflow-author-supplied routing function.
type EdgeTarget struct {
	Kind     NodeKind
	Question *Question
	Action   *Action
}

// Edge is a PRECEDES or TRIGGERS relationship connecting a section,
// question, or action to its successor (spec.md §3). Edges at a single
// source are evaluated in strict OrderInForm ascending order, ties broken
// by the GraphStore's own creation-order (seq).
type Edge struct {
	Kind EdgeKind
	From string

	OrderInForm int
	AskWhen     string
	// SourceNodeExpr is the edge's optional declared sourceNode
	// expression (spec.md §3); empty means the current source node is
	// left unchanged when this edge is taken.
	SourceNodeExpr string
	Variables      []VariableDef
	Target         EdgeTarget
	// seq is the GraphStore's creation-order value for this edge, carried
	// over from the edge row; the store itself already orders rows by it
	// within one OrderInForm, so the engine does not re-sort.
	seq int64
}
