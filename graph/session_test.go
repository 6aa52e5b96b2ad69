package graph

import (
	"context"
	"testing"

	"github.com/arclight-io/qflow/graph/emit"
	"github.com/arclight-io/qflow/sandbox"
	"github.com/arclight-io/qflow/store"
	"github.com/arclight-io/qflow/value"
)

func newTestSession(t *testing.T, ms *store.MemoryStore) *Session {
	t.Helper()
	eng, err := New(ms, sandbox.NewMockSandbox())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return NewSession(eng)
}

// TestSessionRunReturnsUnansweredQuestion exercises the full Session/Run
// construction order (validate, build Context, Traverse, shape response)
// for scenario S1.
func TestSessionRunReturnsUnansweredQuestion(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.AddNode("SEC_PI", "Section", 1, true, map[string]value.Value{
		"inputParams": value.List([]value.Value{value.String("applicationId"), value.String("applicantId")}),
	})
	ms.AddNode("Q_FN", "Question", 1, true, map[string]value.Value{"prompt": value.String("first name?")})
	ms.AddEdge("PRECEDES", "SEC_PI", "Q_FN", 10, "", "", nil)

	sess := newTestSession(t, ms)
	req := Request{
		SectionID: "SEC_PI",
		Inputs: map[string]value.Value{
			"applicationId": value.String("A1"),
			"applicantId":   value.String("P1"),
		},
	}
	resp, err := sess.Run(context.Background(), "trace-1", req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Question == nil || resp.Question.QuestionID != "Q_FN" {
		t.Fatalf("expected question Q_FN, got %+v", resp.Question)
	}
	if resp.Completed {
		t.Fatal("expected completed=false")
	}
	if resp.NextSectionID != nil {
		t.Fatal("expected no nextSectionId")
	}
	if len(resp.CreatedNodeIds) != 0 {
		t.Fatal("expected no created node ids")
	}
}

// TestSessionRunEchoesRequestVariables is invariant 1: requestVariables in
// the response deep-equals the caller's input map.
func TestSessionRunEchoesRequestVariables(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.AddNode("SEC_ECHO", "Section", 1, true, map[string]value.Value{
		"inputParams": value.List([]value.Value{value.String("applicationId")}),
	})

	sess := newTestSession(t, ms)
	inputs := map[string]value.Value{"applicationId": value.String("A9")}
	resp, err := sess.Run(context.Background(), "trace-echo", Request{SectionID: "SEC_ECHO", Inputs: inputs})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, ok := resp.RequestVariables["applicationId"]
	if !ok {
		t.Fatal("expected requestVariables to carry applicationId")
	}
	s, _ := got.AsString()
	if s != "A9" {
		t.Fatalf("expected echoed applicationId A9, got %q", s)
	}
}

// TestSessionRunRejectsMissingInputParams exercises validateInputs: a
// section declaring required input parameters the request omits must fail
// before any traversal begins.
func TestSessionRunRejectsMissingInputParams(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.AddNode("SEC_REQ", "Section", 1, true, map[string]value.Value{
		"inputParams": value.List([]value.Value{value.String("applicationId"), value.String("applicantId")}),
	})

	sess := newTestSession(t, ms)
	_, err := sess.Run(context.Background(), "trace-missing", Request{SectionID: "SEC_REQ", Inputs: nil})
	if err == nil {
		t.Fatal("expected an error for missing input parameters")
	}
	if !IsInvalidRequest(err) {
		t.Fatalf("expected ErrorInvalidRequest, got %v", err)
	}
}

// TestSessionRunRejectsEmptySectionID checks the section id precondition
// ahead of any GraphStore call.
func TestSessionRunRejectsEmptySectionID(t *testing.T) {
	ms := store.NewMemoryStore()
	sess := newTestSession(t, ms)
	_, err := sess.Run(context.Background(), "trace-empty", Request{})
	if err == nil || !IsInvalidRequest(err) {
		t.Fatalf("expected ErrorInvalidRequest for empty sectionId, got %v", err)
	}
}

// TestSessionRunGeneratesTraceIDWhenEmpty confirms an empty caller-supplied
// traceID is replaced with a generated one rather than propagated as "".
func TestSessionRunGeneratesTraceIDWhenEmpty(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.AddNode("SEC_TRACE", "Section", 1, true, nil)
	buf := emit.NewBufferedEmitter()
	eng, err := New(ms, sandbox.NewMockSandbox(), WithEmitter(buf))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess := NewSession(eng)

	resp, err := sess.Run(context.Background(), "", Request{SectionID: "SEC_TRACE"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response")
	}
	// traversal_complete is always emitted, so an empty trace id propagated
	// into the Context would leave events under "".
	if got := buf.GetHistory(""); len(got) != 0 {
		t.Fatalf("expected no events under an empty trace id, got %d", len(got))
	}
}

// TestSessionRunMarksCompletedViaAction covers scenario S5 through the full
// Session/Response assembler.
func TestSessionRunMarksCompletedViaAction(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.AddNode("SEC_DONE", "Section", 1, true, nil)
	ms.AddNode("ACT_DONE", "Action", 1, true, map[string]value.Value{
		"actionType": value.String(string(ActionMarkSectionComplete)),
		"body":       value.String("MARK_DONE"),
	})
	ms.AddEdge("TRIGGERS", "SEC_DONE", "ACT_DONE", 10, "", "", nil)
	ms.RegisterHandler("MARK_DONE", func(ctx context.Context, params map[string]value.Value) (store.Result, error) {
		return store.Result{}, nil
	})

	sess := newTestSession(t, ms)
	resp, err := sess.Run(context.Background(), "trace-complete", Request{SectionID: "SEC_DONE"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.Completed {
		t.Fatal("expected completed=true")
	}
	if resp.Question != nil {
		t.Fatal("expected no question")
	}
}
