package emit

import "context"

// Emitter receives observability events raised during a traversal request.
//
// Implementations should be non-blocking and thread-safe (a host may run
// many requests concurrently, each against its own Context but sharing one
// Emitter), and must never panic — a broken observability backend must not
// take down a traversal request.
type Emitter interface {
	// Emit sends a single event to the configured backend.
	Emit(event Event)

	// EmitBatch sends multiple events in one operation, preserving order.
	// Returns an error only for catastrophic failures; individual event
	// delivery failures should be logged internally, not returned.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events are delivered or ctx expires.
	// Safe to call multiple times.
	Flush(ctx context.Context) error
}
