// Package value provides the tagged variant used to represent every scalar,
// node, and collection that flows through the traversal engine: GraphStore
// records, ScriptSandbox results, template placeholders, and response
// payloads all speak this one type instead of bare interface{}.
//
// Values are immutable once constructed. A Value never wraps a live
// GraphStore driver object — adapters copy node labels/properties into a
// Value at the point of retrieval, so repeated visits to the same vertex
// (loops are permitted in the schema graph) never share mutable state.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the variant held by a Value.
type Kind int

// The variant kinds a Value may hold.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindNode
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindNode:
		return "node"
	default:
		return "unknown"
	}
}

// Node represents a graph vertex copied by value: its id, labels, and a
// property map. Properties are reached through Value.Path's implicit
// "node.foo" -> "node.properties.foo" indirection.
type Node struct {
	ID         int64
	Labels     []string
	Properties map[string]Value
}

// Value is the tagged variant described in spec.md §9's design notes.
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
	node *Node
}

// Null returns the Null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a 64-bit integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a 64-bit float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List wraps a list of values.
func List(items []Value) Value { return Value{kind: KindList, list: items} }

// Map wraps a string-keyed map of values.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// NodeValue wraps a graph vertex.
func NodeValue(n Node) Value { return Value{kind: KindNode, node: &n} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds the Null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload and whether v actually holds one.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload and whether v actually holds one.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload and whether v actually holds one.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string payload and whether v actually holds one.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns the list payload and whether v actually holds one.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the map payload and whether v actually holds one.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// AsNode returns the node payload and whether v actually holds one.
func (v Value) AsNode() (Node, bool) {
	if v.kind != KindNode || v.node == nil {
		return Node{}, false
	}
	return *v.node, true
}

// Truthy implements the sandbox dialect's truthiness rule used by askWhen:
// non-empty, non-zero, non-null. An empty list or empty map is falsy; a
// present node is always truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindList:
		return len(v.list) > 0
	case KindMap:
		return len(v.m) > 0
	case KindNode:
		return v.node != nil
	default:
		return false
	}
}

// ToJSONLiteral renders v as a JSON literal suitable for splicing into a
// rendered template. Nodes render as their property map (labels/id are not
// part of the literal — callers that need the full node shape should read
// the Value directly rather than through a rendered template).
func (v Value) ToJSONLiteral() (string, error) {
	data, err := json.Marshal(v.toPlain())
	if err != nil {
		return "", fmt.Errorf("value: encode literal: %w", err)
	}
	return string(data), nil
}

// toPlain converts v into native Go types suitable for encoding/json.
func (v Value) toPlain() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.toPlain()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			out[k] = item.toPlain()
		}
		return out
	case KindNode:
		if v.node == nil {
			return nil
		}
		out := make(map[string]interface{}, len(v.node.Properties))
		for k, item := range v.node.Properties {
			out[k] = item.toPlain()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler by encoding the full variant,
// including node id/labels, for response payloads (e.g. the "sourceNode"
// and "vars" fields of graph.Response).
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNode:
		if v.node == nil {
			return []byte("null"), nil
		}
		props := make(map[string]Value, len(v.node.Properties))
		for k, val := range v.node.Properties {
			props[k] = val
		}
		return json.Marshal(struct {
			ID         int64             `json:"id"`
			Labels     []string          `json:"labels"`
			Properties map[string]Value `json:"properties"`
		}{ID: v.node.ID, Labels: v.node.Labels, Properties: props})
	default:
		return json.Marshal(v.toPlain())
	}
}

// FromGo converts a native Go value (as produced by encoding/json.Unmarshal
// or a driver's row scan) into a Value. Unknown concrete types fall back to
// their fmt.Sprintf string form rather than failing, since callers (variable
// evaluation, template rendering) prefer a degraded value over a hard error.
func FromGo(in interface{}) Value {
	switch t := in.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float32:
		return Float(float64(t))
	case float64:
		// JSON numbers decode as float64; keep integral floats as float to
		// preserve the source evaluator's declared type.
		return Float(t)
	case string:
		return String(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromGo(item)
		}
		return List(items)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromGo(item)
		}
		return Map(m)
	case []Value:
		return List(t)
	case map[string]Value:
		return Map(t)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// FromJSON parses a JSON-encoded string into a Value. It is used by the
// VariableResolver when an evaluator returns a string that itself parses as
// JSON (spec.md §4.4: "if the evaluator yields a string that parses as
// JSON, parse it and cache the parsed form").
func FromJSON(raw string) (Value, bool) {
	var out interface{}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return Null(), false
	}
	if dec.More() {
		return Null(), false
	}
	return fromJSONNative(out), true
}

func fromJSONNative(in interface{}) Value {
	switch t := in.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromJSONNative(item)
		}
		return List(items)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = fromJSONNative(item)
		}
		return Map(m)
	default:
		return FromGo(in)
	}
}

// pathSegment is one step of a parsed dotted/bracket path: either a map key
// or a list index.
type pathSegment struct {
	key      string
	index    int
	isIndex  bool
	property bool // true for the first segment of a node ("sourceNode" -> properties lookup is implicit, handled by Path)
}

// ParsePath splits a template path ("a.b[0].c") into segments. The first
// segment is returned as the root identifier; callers that own a chain of
// named roots (variable cache, inputs, reserved names) should split the
// first identifier off themselves and call Path with the remainder.
func ParsePath(path string) ([]string, error) {
	var segs []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, cur.String())
			cur.Reset()
		}
	}
	i := 0
	for i < len(path) {
		c := path[i]
		switch {
		case c == '.':
			flush()
			i++
		case c == '[':
			flush()
			j := strings.IndexByte(path[i:], ']')
			if j < 0 {
				return nil, fmt.Errorf("value: unterminated '[' in path %q", path)
			}
			idx := path[i+1 : i+j]
			if _, err := strconv.Atoi(idx); err != nil {
				return nil, fmt.Errorf("value: non-integer index %q in path %q", idx, path)
			}
			segs = append(segs, "["+idx+"]")
			i += j + 1
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()
	if len(segs) == 0 {
		return nil, fmt.Errorf("value: empty path")
	}
	return segs, nil
}

// Path walks v using the dotted/bracket segments produced by ParsePath
// (excluding the root identifier, which callers resolve themselves). A
// Value with Kind == KindNode collapses "foo" to "properties.foo" at
// whichever segment the node is reached, per spec.md §4.4.
func (v Value) Path(segments []string) (Value, bool) {
	cur := v
	for idx, seg := range segments {
		if strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]") {
			n, err := strconv.Atoi(seg[1 : len(seg)-1])
			if err != nil {
				return Null(), false
			}
			list, ok := cur.AsList()
			if !ok || n < 0 || n >= len(list) {
				return Null(), false
			}
			cur = list[n]
			continue
		}
		if cur.kind == KindNode {
			if cur.node == nil {
				return Null(), false
			}
			next, ok := cur.node.Properties[seg]
			if !ok {
				return Null(), false
			}
			cur = next
			continue
		}
		m, ok := cur.AsMap()
		if !ok {
			return Null(), false
		}
		next, ok := m[seg]
		if !ok {
			return Null(), false
		}
		cur = next
		_ = idx
	}
	return cur, true
}

// Equal reports deep equality between two values.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindNode:
		if a.node == nil || b.node == nil {
			return a.node == b.node
		}
		if a.node.ID != b.node.ID || len(a.node.Labels) != len(b.node.Labels) {
			return false
		}
		al := append([]string(nil), a.node.Labels...)
		bl := append([]string(nil), b.node.Labels...)
		sort.Strings(al)
		sort.Strings(bl)
		for i := range al {
			if al[i] != bl[i] {
				return false
			}
		}
		return Equal(Map(a.node.Properties), Map(b.node.Properties))
	default:
		return false
	}
}
