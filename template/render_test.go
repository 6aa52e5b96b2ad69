package template

import (
	"strings"
	"testing"

	"github.com/arclight-io/qflow/value"
)

func lookupFrom(vars map[string]value.Value) Lookup {
	return func(root string) (value.Value, bool) {
		v, ok := vars[root]
		return v, ok
	}
}

func TestRenderSubstitutesSimplePlaceholder(t *testing.T) {
	out, warnings := Render(`MATCH (n {id: {{ applicantId }}}) RETURN n`, lookupFrom(map[string]value.Value{
		"applicantId": value.String("P1"),
	}))
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %#v", warnings)
	}
	if out != `MATCH (n {id: "P1"}) RETURN n` {
		t.Fatalf("got %q", out)
	}
}

func TestRenderStripsInnerWhitespace(t *testing.T) {
	out, _ := Render(`{{   applicant . age   }}`, lookupFrom(map[string]value.Value{
		"applicant": value.Map(map[string]value.Value{"age": value.Int(40)}),
	}))
	if out != "40" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderWalksDottedAndBracketPath(t *testing.T) {
	out, _ := Render(`{{ a.b[0].c }}`, lookupFrom(map[string]value.Value{
		"a": value.Map(map[string]value.Value{
			"b": value.List([]value.Value{
				value.Map(map[string]value.Value{"c": value.String("leaf")}),
			}),
		}),
	}))
	if out != `"leaf"` {
		t.Fatalf("got %q", out)
	}
}

func TestRenderUnresolvedPlaceholderBecomesNullWithWarning(t *testing.T) {
	out, warnings := Render(`{{ missing }}`, lookupFrom(nil))
	if out != "null" {
		t.Fatalf("got %q", out)
	}
	if len(warnings) != 1 || warnings[0].Path != "missing" {
		t.Fatalf("got %#v", warnings)
	}
}

func TestRenderMultiplePlaceholders(t *testing.T) {
	out, warnings := Render(`{{ a }}-{{ b }}`, lookupFrom(map[string]value.Value{
		"a": value.Int(1),
		"b": value.Int(2),
	}))
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %#v", warnings)
	}
	if out != "1-2" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderLeavesNonPlaceholderTextAlone(t *testing.T) {
	out, _ := Render("no placeholders here", lookupFrom(nil))
	if out != "no placeholders here" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderPlaceholderInsideStringLiteralIsStillSubstituted(t *testing.T) {
	out, _ := Render(`"prefix-{{ x }}-suffix"`, lookupFrom(map[string]value.Value{"x": value.String("mid")}))
	if !strings.Contains(out, `"mid"`) {
		t.Fatalf("expected substitution inside string literal, got %q", out)
	}
}
