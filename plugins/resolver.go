package plugins

import (
	"context"
	"fmt"

	"github.com/kingrea/lattice-prompts/internal/prompt"
	"github.com/kingrea/lattice-prompts/internal/variables"
)

// DefinitionResolver serves one on-disk definition. Placeholders inside the
// definition's text resolve as dependencies through the engine's cache.
type DefinitionResolver struct {
	file     DefinitionFile
	expander *prompt.Expander
}

// NewDefinitionResolver builds the resolver for file. opts configure the
// expander applied to the definition's text.
func NewDefinitionResolver(file DefinitionFile, opts ...prompt.Option) *DefinitionResolver {
	return &DefinitionResolver{file: file, expander: prompt.NewExpander(nil, opts...)}
}

// Definition returns the definition served by the resolver.
func (r *DefinitionResolver) Definition() VariableDefinition {
	return r.file.Definition
}

// Score reports the definition's priority when it can produce text for the
// argument, and zero otherwise.
func (r *DefinitionResolver) Score(_ context.Context, req variables.Request, _ any) int {
	def := r.file.Definition
	if r.file.Func != nil || def.Value != "" {
		return def.Priority
	}
	if _, ok := def.Values[req.Arg]; ok {
		return def.Priority
	}
	return 0
}

// Resolve produces the definition's text for req.Arg and expands the
// placeholders inside it.
func (r *DefinitionResolver) Resolve(ctx context.Context, req variables.Request, scope any, resolve variables.DependencyFunc) (*variables.ResolvedVariable, error) {
	text, ok, err := r.text(req.Arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.file.Path, err)
	}
	if !ok {
		return nil, nil
	}
	result, err := r.expander.Expand(ctx, text, prompt.Input{Scope: scope, Resolve: resolve})
	if err != nil {
		return nil, err
	}
	return &variables.ResolvedVariable{
		Variable:     req.Variable,
		Arg:          req.Arg,
		Value:        result.Text,
		Dependencies: result.Variables,
	}, nil
}

func (r *DefinitionResolver) text(arg string) (string, bool, error) {
	if r.file.Func != nil {
		out, err := r.file.Func(arg)
		if err != nil {
			return "", false, err
		}
		return out, true, nil
	}
	def := r.file.Definition
	if value, ok := def.Values[arg]; ok {
		return value, true, nil
	}
	if def.Value != "" {
		return def.Value, true, nil
	}
	return "", false, nil
}
