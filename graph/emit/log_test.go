// Package emit provides event emission and observability for graph traversal.
package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogEmitter_StructuredOutput(t *testing.T) {
	t.Run("emits event with all fields", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(&buf, false)

		event := Event{
			TraceID: "trace-001",
			Step:    1,
			NodeID:  "SEC_A->Q1",
			Msg:     "edge_selected",
			Meta: map[string]interface{}{
				"key": "value",
			},
		}

		emitter.Emit(event)

		output := buf.String()
		if output == "" {
			t.Fatal("expected output, got empty string")
		}

		if !strings.Contains(output, "trace-001") {
			t.Errorf("expected output to contain TraceID 'trace-001', got: %s", output)
		}
		if !strings.Contains(output, "SEC_A->Q1") {
			t.Errorf("expected output to contain NodeID 'SEC_A->Q1', got: %s", output)
		}
		if !strings.Contains(output, "edge_selected") {
			t.Errorf("expected output to contain Msg 'edge_selected', got: %s", output)
		}

		t.Logf("LogEmitter output: %s", output)
	})

	t.Run("emits multiple events", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(&buf, false)

		event1 := Event{
			TraceID: "trace-001",
			Step:    0,
			NodeID:  "Q1",
			Msg:     "variable_eval",
		}
		event2 := Event{
			TraceID: "trace-001",
			Step:    1,
			NodeID:  "Q1->Q2",
			Msg:     "edge_selected",
		}

		emitter.Emit(event1)
		emitter.Emit(event2)

		output := buf.String()
		lines := strings.Split(strings.TrimSpace(output), "\n")

		if len(lines) < 2 {
			t.Errorf("expected at least 2 lines of output, got %d", len(lines))
		}

		t.Logf("LogEmitter multi-event output: %s", output)
	})
}

func TestLogEmitter_JSONFormatting(t *testing.T) {
	t.Run("emits valid JSON when JSON mode enabled", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(&buf, true)

		event := Event{
			TraceID: "trace-json-001",
			Step:    2,
			NodeID:  "ACT_CREATE_DATAPOINT",
			Msg:     "action_executed",
			Meta: map[string]interface{}{
				"counter": 42,
				"status":  "success",
			},
		}

		emitter.Emit(event)

		output := buf.String()
		if output == "" {
			t.Fatal("expected JSON output, got empty string")
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(output), &parsed); err != nil {
			t.Fatalf("expected valid JSON, got error: %v\nOutput: %s", err, output)
		}

		if parsed["traceId"] != "trace-json-001" {
			t.Errorf("expected traceId 'trace-json-001', got %v", parsed["traceId"])
		}
		if parsed["step"] != float64(2) {
			t.Errorf("expected step 2, got %v", parsed["step"])
		}
		if parsed["nodeId"] != "ACT_CREATE_DATAPOINT" {
			t.Errorf("expected nodeId 'ACT_CREATE_DATAPOINT', got %v", parsed["nodeId"])
		}
		if parsed["msg"] != "action_executed" {
			t.Errorf("expected msg 'action_executed', got %v", parsed["msg"])
		}

		meta, ok := parsed["meta"].(map[string]interface{})
		if !ok {
			t.Fatal("expected meta to be a map")
		}
		if meta["counter"] != float64(42) {
			t.Errorf("expected counter 42, got %v", meta["counter"])
		}

		t.Logf("LogEmitter JSON output: %s", output)
	})

	t.Run("emits multiple JSON events on separate lines", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(&buf, true)

		event1 := Event{TraceID: "trace-001", Step: 0, NodeID: "Q1", Msg: "variable_eval"}
		event2 := Event{TraceID: "trace-001", Step: 1, NodeID: "Q1->Q2", Msg: "edge_selected"}

		emitter.Emit(event1)
		emitter.Emit(event2)

		output := buf.String()
		lines := strings.Split(strings.TrimSpace(output), "\n")

		if len(lines) != 2 {
			t.Errorf("expected 2 lines of JSON, got %d", len(lines))
		}

		for i, line := range lines {
			var parsed map[string]interface{}
			if err := json.Unmarshal([]byte(line), &parsed); err != nil {
				t.Errorf("line %d: expected valid JSON, got error: %v\nLine: %s", i, err, line)
			}
		}

		t.Logf("LogEmitter multi-event JSON output:\n%s", output)
	})
}

func TestLogEmitter_InterfaceContract(t *testing.T) {
	var buf bytes.Buffer
	var _ Emitter = NewLogEmitter(&buf, false)
}
