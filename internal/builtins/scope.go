package builtins

import (
	"context"
	"strings"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

// ScopeVariable reads values from the scope handed to the engine,
// `{{scope:ticket}}`.
var ScopeVariable = variables.Variable{
	Name:              "scope",
	ID:                "builtin",
	Description:       "Value supplied by the caller's scope",
	Arguments:         []variables.Argument{{Name: "key", Description: "scope key", Required: true}},
	IsContextVariable: true,
}

// ScopeLookup is implemented by scopes that are not plain string maps.
type ScopeLookup interface {
	Lookup(key string) (string, bool)
}

// ScopeResolver is a SimpleResolver for ScopeVariable. It scores zero when the
// scope does not carry the key.
type ScopeResolver struct{}

// NewScopeResolver returns a ScopeResolver.
func NewScopeResolver() *ScopeResolver {
	return &ScopeResolver{}
}

func (r *ScopeResolver) Score(_ context.Context, req variables.Request, scope any) int {
	if _, ok := lookupScope(scope, req.Arg); ok {
		return 1
	}
	return 0
}

func (r *ScopeResolver) Resolve(_ context.Context, req variables.Request, scope any) (*variables.ResolvedVariable, error) {
	value, ok := lookupScope(scope, req.Arg)
	if !ok {
		return nil, nil
	}
	return &variables.ResolvedVariable{Variable: req.Variable, Arg: req.Arg, Value: value}, nil
}

func lookupScope(scope any, key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	switch s := scope.(type) {
	case map[string]string:
		value, ok := s[key]
		return value, ok
	case ScopeLookup:
		return s.Lookup(key)
	default:
		return "", false
	}
}
