package plugins

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

// VariableDefinition describes a variable declared on disk.
//
// The struct mirrors the schema of .lattice/variables/*.yaml. A definition
// produces its text from, in order of precedence, a Go function (Go
// definitions only), the entry in Values matching the argument, or Value.
// The chosen text may itself contain placeholders, which resolve as
// dependencies of the variable.
type VariableDefinition struct {
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Arguments   []variables.Argument `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Value       string               `json:"value,omitempty" yaml:"value,omitempty"`
	Values      map[string]string    `json:"values,omitempty" yaml:"values,omitempty"`
	// Priority is the resolver score; definitions with a higher priority win
	// over built-ins and other definitions of the same variable.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
	// Context marks variables whose text depends on the caller's scope.
	Context bool `json:"context,omitempty" yaml:"context,omitempty"`
	// Func names the function of a Go definition file producing the value.
	Func string `json:"func,omitempty" yaml:"func,omitempty"`
}

// Normalized returns a trimmed, copy-on-write variant of the definition.
func (def VariableDefinition) Normalized() VariableDefinition {
	clone := VariableDefinition{
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Value:       def.Value,
		Priority:    def.Priority,
		Context:     def.Context,
		Func:        strings.TrimSpace(def.Func),
	}
	if clone.Priority == 0 {
		clone.Priority = 1
	}
	if len(def.Arguments) > 0 {
		clone.Arguments = make([]variables.Argument, len(def.Arguments))
		for i, arg := range def.Arguments {
			clone.Arguments[i] = variables.Argument{
				Name:        strings.TrimSpace(arg.Name),
				Description: strings.TrimSpace(arg.Description),
				Required:    arg.Required,
			}
		}
	}
	if len(def.Values) > 0 {
		clone.Values = make(map[string]string, len(def.Values))
		for key, value := range def.Values {
			clone.Values[strings.TrimSpace(key)] = value
		}
	}
	return clone
}

// Validate ensures the definition declares a usable variable and a source for
// its value.
func (def VariableDefinition) Validate() error {
	normalized := def.Normalized()
	if err := normalized.Variable("").Validate(); err != nil {
		return fmt.Errorf("plugin: %w", err)
	}
	if normalized.Priority < 0 {
		return fmt.Errorf("plugin %s: priority must be >= 0", normalized.Name)
	}
	if normalized.Value == "" && len(normalized.Values) == 0 && normalized.Func == "" {
		return fmt.Errorf("plugin %s: one of value, values or func is required", normalized.Name)
	}
	return nil
}

// Variable converts the definition into its registry form. id records where
// the definition came from.
func (def VariableDefinition) Variable(id string) variables.Variable {
	return variables.Variable{
		Name:              def.Name,
		ID:                id,
		Description:       def.Description,
		Arguments:         def.Arguments,
		IsContextVariable: def.Context,
	}
}

// ValueKeys lists the arguments with a dedicated value, sorted.
func (def VariableDefinition) ValueKeys() []string {
	keys := make([]string, 0, len(def.Values))
	for key := range def.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
