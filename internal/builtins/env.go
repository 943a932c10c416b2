package builtins

import (
	"context"
	"strings"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

// EnvVariable exposes process environment variables, `{{env:HOME}}`.
var EnvVariable = variables.Variable{
	Name:        "env",
	ID:          "builtin",
	Description: "Value of an environment variable",
	Arguments:   []variables.Argument{{Name: "name", Description: "environment variable name", Required: true}},
}

// EnvResolver is a SimpleResolver for EnvVariable. Unset variables score zero
// so the placeholder is left untouched.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvResolver reads variables through lookup.
func NewEnvResolver(lookup func(string) (string, bool)) *EnvResolver {
	return &EnvResolver{lookup: lookup}
}

func (r *EnvResolver) Score(_ context.Context, req variables.Request, _ any) int {
	key := strings.TrimSpace(req.Arg)
	if key == "" || r.lookup == nil {
		return 0
	}
	if _, ok := r.lookup(key); !ok {
		return 0
	}
	return 1
}

func (r *EnvResolver) Resolve(_ context.Context, req variables.Request, _ any) (*variables.ResolvedVariable, error) {
	value, ok := r.lookup(strings.TrimSpace(req.Arg))
	if !ok {
		return nil, nil
	}
	return &variables.ResolvedVariable{Variable: req.Variable, Arg: req.Arg, Value: value}, nil
}
