package plugins

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

func TestVariableDefinitionValidate(t *testing.T) {
	def := VariableDefinition{
		Name:        "greeting",
		Description: "Salutation for the current user",
		Arguments:   []variables.Argument{{Name: "tone"}},
		Value:       "Hello {{scope:user}}",
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("expected definition to validate, got %v", err)
	}
}

func TestVariableDefinitionValidateFailures(t *testing.T) {
	tests := []struct {
		name string
		def  VariableDefinition
		msg  string
	}{
		{
			name: "missing name",
			def:  VariableDefinition{Value: "x"},
			msg:  "name is required",
		},
		{
			name: "reserved characters",
			def:  VariableDefinition{Name: "a:b", Value: "x"},
			msg:  "reserved characters",
		},
		{
			name: "no value source",
			def:  VariableDefinition{Name: "empty"},
			msg:  "one of value, values or func",
		},
		{
			name: "negative priority",
			def:  VariableDefinition{Name: "p", Value: "x", Priority: -1},
			msg:  "priority",
		},
		{
			name: "unnamed argument",
			def:  VariableDefinition{Name: "p", Value: "x", Arguments: []variables.Argument{{Description: "?"}}},
			msg:  "has no name",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.def.Validate(); err == nil || !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("expected error containing %q, got %v", tc.msg, err)
			}
		})
	}
}

func TestVariableDefinitionNormalized(t *testing.T) {
	def := VariableDefinition{
		Name:      "  tone ",
		Arguments: []variables.Argument{{Name: " style ", Required: true}},
		Values:    map[string]string{" formal ": "Dear", "casual": "Hey"},
	}.Normalized()
	if def.Name != "tone" || def.Priority != 1 {
		t.Fatalf("unexpected normalization: %+v", def)
	}
	if diff := cmp.Diff([]string{"casual", "formal"}, def.ValueKeys()); diff != "" {
		t.Fatalf("value keys mismatch (-want +got):\n%s", diff)
	}
	v := def.Variable("defs/tone.yaml")
	want := variables.Variable{Name: "tone", ID: "defs/tone.yaml", Arguments: []variables.Argument{{Name: "style", Required: true}}}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("variable mismatch (-want +got):\n%s", diff)
	}
}
