package sandbox

import "github.com/arclight-io/qflow/value"

// MockSandbox is a test double that answers each expression from a
// canned table rather than actually evaluating it, for tests that want to
// pin a variable/askWhen outcome without depending on CEL's grammar.
type MockSandbox struct {
	Results map[string]value.Value
	Errors  map[string]error
	Calls   []string
}

// NewMockSandbox returns an empty MockSandbox.
func NewMockSandbox() *MockSandbox {
	return &MockSandbox{Results: make(map[string]value.Value), Errors: make(map[string]error)}
}

// Eval implements ScriptSandbox.
func (m *MockSandbox) Eval(expression string, lookup Lookup, timeoutMs int) (value.Value, error) {
	m.Calls = append(m.Calls, expression)
	if err, ok := m.Errors[expression]; ok {
		return value.Null(), err
	}
	if v, ok := m.Results[expression]; ok {
		return v, nil
	}
	return value.Null(), &Failure{Kind: FailureEvalError, Message: "mock sandbox: no result registered for expression"}
}
