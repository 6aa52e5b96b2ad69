package sandbox

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/interpreter"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arclight-io/qflow/value"
)

// CELSandbox is the grounded ScriptSandbox implementation: it evaluates the
// "python"/"python:" dialect as CEL (Common Expression Language), which is
// sandboxed by construction — CEL has no loop construct, no import
// mechanism, and no way to call back into the host process — so the
// forbidden capabilities listed in spec.md §4.2 (file/network/process
// access, arbitrary imports, exec/eval of dynamic strings) are simply
// absent from the language rather than blacklisted.
//
// Date/time arithmetic and regular-expression matching (spec.md §4.2's
// "allowed modules") are part of CEL's standard library (timestamp/duration
// literals and arithmetic, and the `matches` string operator); `len`, `min`,
// `max`, `sum`, and `sorted` are registered below as custom functions since
// CEL's base library does not provide them under those names.
type CELSandbox struct {
	env      *cel.Env
	programs sync.Map // map[string]cel.Program, keyed by expression text
}

var dunderPattern = regexp.MustCompile(`(?:^|\.)_[A-Za-z0-9_]*`)

// NewCELSandbox constructs a CELSandbox with the whitelisted built-ins
// registered. Construction is expensive (it builds the CEL type-checking
// environment); callers should build one CELSandbox and reuse it for the
// lifetime of the process.
func NewCELSandbox() (*CELSandbox, error) {
	env, err := cel.NewEnv(
		cel.Function("len",
			cel.Overload("len_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return v.(traits.Sizer).Size()
				})),
			cel.Overload("len_string", []*cel.Type{cel.StringType}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return v.(traits.Sizer).Size()
				})),
		),
		cel.Function("min",
			cel.Overload("min_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.DynType,
				cel.UnaryBinding(minOfList)),
			cel.Overload("min_binary", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(minOfTwo)),
		),
		cel.Function("max",
			cel.Overload("max_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.DynType,
				cel.UnaryBinding(maxOfList)),
			cel.Overload("max_binary", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(maxOfTwo)),
		),
		cel.Function("sum",
			cel.Overload("sum_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.DynType,
				cel.UnaryBinding(sumOfList)),
		),
		cel.Function("sorted",
			cel.Overload("sorted_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.ListType(cel.DynType),
				cel.UnaryBinding(sortedList)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("sandbox: build cel environment: %w", err)
	}
	return &CELSandbox{env: env}, nil
}

// Eval implements ScriptSandbox.
func (s *CELSandbox) Eval(expression string, lookup Lookup, timeoutMs int) (value.Value, error) {
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}
	if dunderPattern.MatchString(expression) {
		return value.Null(), &Failure{Kind: FailureSecurityViolation, Message: "access to a private/dunder name is forbidden"}
	}

	prg, err := s.program(expression)
	if err != nil {
		return value.Null(), err
	}

	act := &lookupActivation{lookup: lookup}

	type outcome struct {
		val ref.Val
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, _, evalErr := prg.Eval(act)
		done <- outcome{val: out, err: evalErr}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return value.Null(), &Failure{Kind: FailureEvalError, Message: "expression evaluation failed", Cause: res.err}
		}
		return fromCELVal(res.val)
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return value.Null(), &Failure{Kind: FailureTimeout, Message: fmt.Sprintf("expression exceeded %dms", timeoutMs)}
	}
}

// lookupActivation adapts a Lookup into a CEL interpreter.Activation, so
// identifier resolution calls straight back into the VariableResolver's
// scope chain instead of requiring every free variable to be materialised
// up front.
type lookupActivation struct {
	lookup Lookup
}

func (a *lookupActivation) ResolveName(name string) (interface{}, bool) {
	if a.lookup == nil {
		return types.NullValue, true
	}
	v, ok := a.lookup(name)
	if !ok {
		return types.NullValue, true
	}
	return toCELNative(v), true
}

func (a *lookupActivation) Parent() interpreter.Activation { return nil }

func (s *CELSandbox) program(expression string) (cel.Program, error) {
	if cached, ok := s.programs.Load(expression); ok {
		return cached.(cel.Program), nil
	}
	ast, iss := s.env.Parse(expression)
	if iss != nil && iss.Err() != nil {
		return nil, &Failure{Kind: FailureEvalError, Message: "expression failed to parse", Cause: iss.Err()}
	}
	prg, err := s.env.Program(ast)
	if err != nil {
		return nil, &Failure{Kind: FailureEvalError, Message: "expression failed to plan", Cause: err}
	}
	s.programs.Store(expression, prg)
	return prg, nil
}

// toCELNative converts a value.Value into the native Go representation
// CEL's default type adapter understands, collapsing a node to its
// properties map (with "id" present) the same way value.Value.Path does.
func toCELNative(v value.Value) interface{} {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt:
		i, _ := v.AsInt()
		return i
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindList:
		list, _ := v.AsList()
		out := make([]interface{}, len(list))
		for i, item := range list {
			out[i] = toCELNative(item)
		}
		return out
	case value.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]interface{}, len(m))
		for k, item := range m {
			out[k] = toCELNative(item)
		}
		return out
	case value.KindNode:
		n, _ := v.AsNode()
		out := make(map[string]interface{}, len(n.Properties))
		for k, item := range n.Properties {
			out[k] = toCELNative(item)
		}
		return out
	default:
		return nil
	}
}

func listElems(v ref.Val) ([]ref.Val, error) {
	lister, ok := v.(traits.Lister)
	if !ok {
		return nil, fmt.Errorf("not a list")
	}
	sz, ok := lister.Size().(types.Int)
	if !ok {
		return nil, fmt.Errorf("list has no size")
	}
	out := make([]ref.Val, int(sz))
	for i := range out {
		out[i] = lister.Get(types.Int(i))
	}
	return out, nil
}

func compareVals(a, b ref.Val) (int, error) {
	cmp, ok := a.(traits.Comparer)
	if !ok {
		return 0, fmt.Errorf("value is not comparable")
	}
	res := cmp.Compare(b)
	if types.IsError(res) {
		return 0, fmt.Errorf("incomparable values")
	}
	iv, ok := res.(types.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected comparison result")
	}
	return int(iv), nil
}

func minOfList(v ref.Val) ref.Val {
	elems, err := listElems(v)
	if err != nil || len(elems) == 0 {
		return types.NewErr("min: expression must be a non-empty list")
	}
	best := elems[0]
	for _, e := range elems[1:] {
		c, err := compareVals(e, best)
		if err != nil {
			return types.NewErr("min: %v", err)
		}
		if c < 0 {
			best = e
		}
	}
	return best
}

func maxOfList(v ref.Val) ref.Val {
	elems, err := listElems(v)
	if err != nil || len(elems) == 0 {
		return types.NewErr("max: expression must be a non-empty list")
	}
	best := elems[0]
	for _, e := range elems[1:] {
		c, err := compareVals(e, best)
		if err != nil {
			return types.NewErr("max: %v", err)
		}
		if c > 0 {
			best = e
		}
	}
	return best
}

func minOfTwo(a, b ref.Val) ref.Val {
	c, err := compareVals(a, b)
	if err != nil {
		return types.NewErr("min: %v", err)
	}
	if c <= 0 {
		return a
	}
	return b
}

func maxOfTwo(a, b ref.Val) ref.Val {
	c, err := compareVals(a, b)
	if err != nil {
		return types.NewErr("max: %v", err)
	}
	if c >= 0 {
		return a
	}
	return b
}

func sumOfList(v ref.Val) ref.Val {
	elems, err := listElems(v)
	if err != nil {
		return types.NewErr("sum: expression must be a list")
	}
	if len(elems) == 0 {
		return types.Int(0)
	}
	acc := elems[0]
	for _, e := range elems[1:] {
		adder, ok := acc.(traits.Adder)
		if !ok {
			return types.NewErr("sum: non-numeric element")
		}
		acc = adder.Add(e)
		if types.IsError(acc) {
			return acc
		}
	}
	return acc
}

func sortedList(v ref.Val) ref.Val {
	elems, err := listElems(v)
	if err != nil {
		return types.NewErr("sorted: expression must be a list")
	}
	var sortErr error
	sort.SliceStable(elems, func(i, j int) bool {
		c, cErr := compareVals(elems[i], elems[j])
		if cErr != nil {
			sortErr = cErr
			return false
		}
		return c < 0
	})
	if sortErr != nil {
		return types.NewErr("sorted: %v", sortErr)
	}
	return types.NewRefValList(types.DefaultTypeAdapter, elems)
}

// fromCELVal converts a CEL evaluation result back into a value.Value via
// protobuf's structpb, the standard way to pull a plain Go value out of an
// arbitrary ref.Val without a type switch over every CEL wrapper type.
func fromCELVal(v ref.Val) (value.Value, error) {
	if v == nil || v == types.NullValue {
		return value.Null(), nil
	}
	native, err := v.ConvertToNative(reflect.TypeOf(&structpb.Value{}))
	if err != nil {
		return value.Null(), &Failure{Kind: FailureEvalError, Message: "expression result has an unsupported type", Cause: err}
	}
	pv, ok := native.(*structpb.Value)
	if !ok {
		return value.Null(), &Failure{Kind: FailureEvalError, Message: "expression result conversion produced an unexpected type"}
	}
	return value.FromGo(pv.AsInterface()), nil
}
