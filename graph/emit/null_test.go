// Package emit provides event emission and observability for graph traversal.
package emit

import (
	"testing"
)

func TestNullEmitter_NoOp(t *testing.T) {
	t.Run("emits events without error", func(t *testing.T) {
		emitter := NewNullEmitter()

		events := []Event{
			{TraceID: "trace-001", Step: 0, NodeID: "SEC_A->Q1", Msg: "edge_selected"},
			{TraceID: "trace-001", Step: 1, NodeID: "Q1", Msg: "variable_eval"},
			{TraceID: "trace-001", Step: 2, NodeID: "Q2", Msg: "variable_timeout", Meta: map[string]interface{}{"dialect": "cypher"}},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		t.Log("NullEmitter successfully discarded all events")
	})

	t.Run("can emit with nil meta", func(t *testing.T) {
		emitter := NewNullEmitter()

		event := Event{
			TraceID: "trace-001",
			Step:    0,
			NodeID:  "Q1",
			Msg:     "variable_eval",
			Meta:    nil,
		}

		emitter.Emit(event)

		t.Log("NullEmitter handled nil meta without error")
	})
}

func TestNullEmitter_InterfaceContract(t *testing.T) {
	var _ Emitter = NewNullEmitter()
}
