// Package emit provides event emission and observability for graph
// traversal. Emitters never participate in traversal semantics — they are
// a side channel an embedding host can attach for logging, tracing, or
// in-memory inspection of what a request did.
package emit

// Event represents one observability event raised while a traversal
// request runs: an edge selected, a variable evaluated or timed out, an
// action executed, or the request completing.
type Event struct {
	// TraceID identifies the traversal request that emitted this event.
	TraceID string

	// Step is this event's 1-indexed sequence number among all events the
	// request emitted, including request-level ones (traversal_complete).
	Step int

	// NodeID identifies the section/question/action/edge this event
	// concerns. Empty for request-level events.
	NodeID string

	// Msg names the event kind, e.g. "edge_selected", "variable_timeout",
	// "action_executed", "traversal_complete".
	Msg string

	// Meta carries event-specific structured data. Common keys:
	//   - "dialect": "cypher" or "python"
	//   - "duration_ms": evaluation duration
	//   - "error": failure detail
	//   - "action_type": the ActionType executed
	Meta map[string]interface{}
}
