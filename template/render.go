// Package template implements the TemplateRenderer collaborator (spec.md
// §4.3): it rewrites `{{ <path> }}` placeholders in a query or expression
// body into JSON literals drawn from the request's context, so that the
// string handed to GraphStore or ScriptSandbox contains only
// syntactically-legal literals.
package template

import (
	"regexp"
	"strings"

	"github.com/arclight-io/qflow/value"
)

// Lookup resolves the root identifier of a parsed path (e.g. "applicant" in
// "applicant.income") to its Value. Implementations try the variable cache,
// then the input-parameter map, then the reserved names ("sourceNode",
// "createdNodeIds"), in that order (spec.md §4.3).
type Lookup func(root string) (value.Value, bool)

// Warning records a placeholder that could not be resolved.
type Warning struct {
	Path    string
	Message string
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// Render replaces every {{ path }} occurrence in src with the JSON literal
// for the value that path resolves to under lookup. An unresolved path is
// replaced by the literal null and appends a Warning; Render itself never
// fails.
func Render(src string, lookup Lookup) (string, []Warning) {
	var warnings []Warning
	out := placeholderPattern.ReplaceAllStringFunc(src, func(match string) string {
		raw := placeholderPattern.FindStringSubmatch(match)[1]
		path := strings.Join(strings.Fields(raw), "")
		lit, ok := resolve(path, lookup)
		if !ok {
			warnings = append(warnings, Warning{Path: path, Message: "unresolved template placeholder"})
			return "null"
		}
		return lit
	})
	return out, warnings
}

func resolve(path string, lookup Lookup) (string, bool) {
	segments, err := value.ParsePath(path)
	if err != nil || len(segments) == 0 {
		return "", false
	}
	root, ok := lookup(segments[0])
	if !ok {
		return "", false
	}
	v := root
	if len(segments) > 1 {
		v, ok = root.Path(segments[1:])
		if !ok {
			return "", false
		}
	}
	lit, err := v.ToJSONLiteral()
	if err != nil {
		return "", false
	}
	return lit, true
}
