package graph

import "github.com/arclight-io/qflow/value"

// Conversions from the GraphStore's generic value.Node/value.Value shapes
// into the traversal core's concrete vertex types. A GraphStore backend
// knows nothing about Section/Question/Action — it returns labelled
// property bags — so every dereference of QueryResolveLatestActive or
// QueryOutgoingEdges' "to" column passes through one of these.

func stringProp(props map[string]value.Value, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

func intProp(props map[string]value.Value, key string) int {
	v, ok := props[key]
	if !ok {
		return 0
	}
	i, _ := v.AsInt()
	return int(i)
}

func boolProp(props map[string]value.Value, key string, def bool) bool {
	v, ok := props[key]
	if !ok {
		return def
	}
	b, ok := v.AsBool()
	if !ok {
		return def
	}
	return b
}

func stringListProp(props map[string]value.Value, key string) []string {
	v, ok := props[key]
	if !ok {
		return nil
	}
	list, ok := v.AsList()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

func variablesProp(props map[string]value.Value, key string) []VariableDef {
	v, ok := props[key]
	if !ok {
		return nil
	}
	list, ok := v.AsList()
	if !ok {
		return nil
	}
	out := make([]VariableDef, 0, len(list))
	for _, item := range list {
		m, ok := item.AsMap()
		if !ok {
			continue
		}
		out = append(out, VariableDef{
			Name:      stringProp(m, "name"),
			Cypher:    stringProp(m, "cypher"),
			Python:    stringProp(m, "python"),
			TimeoutMs: intProp(m, "timeoutMs"),
		})
	}
	return out
}

func hasLabel(n value.Node, label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// sectionFromNode converts a QueryResolveLatestActive/QueryOutgoingEdges
// "Section"-labelled node into a Section.
func sectionFromNode(n value.Node) Section {
	return Section{
		SectionID:   stringProp(n.Properties, "id"),
		Name:        stringProp(n.Properties, "name"),
		InputParams: stringListProp(n.Properties, "inputParams"),
		Variables:   variablesProp(n.Properties, "variables"),
	}
}

func questionFromNode(n value.Node) Question {
	return Question{
		QuestionID:  stringProp(n.Properties, "id"),
		Prompt:      stringProp(n.Properties, "prompt"),
		FieldID:     stringProp(n.Properties, "fieldId"),
		DataType:    stringProp(n.Properties, "dataType"),
		OrderInForm: intProp(n.Properties, "orderInForm"),
		Variables:   variablesProp(n.Properties, "variables"),
	}
}

func actionFromNode(n value.Node) Action {
	return Action{
		ActionID:          stringProp(n.Properties, "id"),
		ActionType:        ActionType(stringProp(n.Properties, "actionType")),
		Body:              stringProp(n.Properties, "body"),
		NextSectionID:     stringProp(n.Properties, "nextSectionId"),
		Returns:           stringListProp(n.Properties, "returns"),
		ReturnImmediately: boolProp(n.Properties, "returnImmediately", true),
		Variables:         variablesProp(n.Properties, "variables"),
		SourceNode:        stringProp(n.Properties, "sourceNode"),
	}
}

// edgeFromRow converts one QueryOutgoingEdges row ({"r", "to", "edgeSeq"})
// into an Edge. fromID, the node the edge originates from, is recorded by
// the caller (it is not itself part of the row).
func edgeFromRow(row map[string]value.Value, fromID string) (Edge, bool) {
	rv, ok := row["r"]
	if !ok {
		return Edge{}, false
	}
	props, ok := rv.AsMap()
	if !ok {
		return Edge{}, false
	}
	toV, ok := row["to"]
	if !ok {
		return Edge{}, false
	}
	to, ok := toV.AsNode()
	if !ok {
		return Edge{}, false
	}
	var seq int64
	if sv, ok := row["edgeSeq"]; ok {
		seq, _ = sv.AsInt()
	}

	target := EdgeTarget{}
	switch {
	case hasLabel(to, string(NodeKindQuestion)):
		target.Kind = NodeKindQuestion
		q := questionFromNode(to)
		target.Question = &q
	case hasLabel(to, string(NodeKindAction)):
		target.Kind = NodeKindAction
		a := actionFromNode(to)
		target.Action = &a
	default:
		return Edge{}, false
	}

	return Edge{
		Kind:           EdgeKind(stringProp(props, "kind")),
		From:           fromID,
		OrderInForm:    intProp(props, "orderInForm"),
		AskWhen:        stringProp(props, "askWhen"),
		SourceNodeExpr: stringProp(props, "sourceNode"),
		Variables:      variablesProp(props, "variables"),
		Target:         target,
		seq:            seq,
	}, true
}
