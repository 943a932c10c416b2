package variables

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidVariable is returned when a variable cannot be registered.
var ErrInvalidVariable = errors.New("variables: invalid variable")

// Argument describes one named argument a variable accepts.
type Argument struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Variable is a named placeholder kind that resolvers know how to turn into text.
type Variable struct {
	// Name is the unique registry key and the token used inside templates.
	Name string
	// ID identifies the contributor that declared the variable.
	ID          string
	Description string
	Arguments   []Argument
	// IsContextVariable marks variables whose value depends on the scope
	// handed to the resolver rather than on global state.
	IsContextVariable bool
}

// Validate ensures the variable is well-formed.
func (v Variable) Validate() error {
	name := strings.TrimSpace(v.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidVariable)
	}
	if strings.ContainsAny(name, ":{} \t\n") {
		return fmt.Errorf("%w: name %q contains reserved characters", ErrInvalidVariable, v.Name)
	}
	for idx, arg := range v.Arguments {
		if strings.TrimSpace(arg.Name) == "" {
			return fmt.Errorf("%w: %s argument[%d] has no name", ErrInvalidVariable, name, idx)
		}
	}
	return nil
}

func (v Variable) clone() Variable {
	out := v
	out.Name = strings.TrimSpace(v.Name)
	if len(v.Arguments) > 0 {
		out.Arguments = append([]Argument(nil), v.Arguments...)
	}
	return out
}

// Ref is the structured form of a resolution request: a variable name plus an
// optional argument. The empty argument and "no argument" are the same request.
type Ref struct {
	Name string
	Arg  string
}

// ParseRef splits "name:arg" on the first colon. A string without a colon is a
// bare variable name.
func ParseRef(raw string) Ref {
	raw = strings.TrimSpace(raw)
	name, arg, found := strings.Cut(raw, ":")
	if !found {
		return Ref{Name: raw}
	}
	return Ref{Name: strings.TrimSpace(name), Arg: arg}
}

// RefFor builds a reference to a declared variable.
func RefFor(v Variable, arg string) Ref {
	return Ref{Name: v.Name, Arg: arg}
}

// String renders the reference in template token form.
func (r Ref) String() string {
	if r.Arg == "" {
		return r.Name
	}
	return r.Name + ":" + r.Arg
}

// Key returns the cache key for the reference.
func (r Ref) Key() string {
	return Key(r.Name, r.Arg)
}

// Request is what a resolver receives: the registered variable and the argument.
type Request struct {
	Variable Variable
	Arg      string
}

// Ref converts the request back into its reference form.
func (r Request) Ref() Ref {
	return Ref{Name: r.Variable.Name, Arg: r.Arg}
}

// ResolvedVariable is the outcome of a successful resolution.
type ResolvedVariable struct {
	Variable Variable
	Arg      string
	Value    string
	// Dependencies is the flattened set of every variable resolved, directly or
	// transitively, while producing Value.
	Dependencies []*ResolvedVariable
}

// Ref returns the reference this value was resolved for.
func (rv *ResolvedVariable) Ref() Ref {
	if rv == nil {
		return Ref{}
	}
	return Ref{Name: rv.Variable.Name, Arg: rv.Arg}
}

// DependencySet accumulates resolved variables and their dependencies into a
// flat, de-duplicated list that keeps first-seen order. The zero value is ready
// to use.
type DependencySet struct {
	seen  map[string]struct{}
	items []*ResolvedVariable
}

// Add records rv and every dependency it carries. Nil values are ignored.
func (s *DependencySet) Add(values ...*ResolvedVariable) {
	for _, rv := range values {
		if rv == nil {
			continue
		}
		s.add(rv)
		for _, dep := range rv.Dependencies {
			if dep != nil {
				s.add(dep)
			}
		}
	}
}

func (s *DependencySet) add(rv *ResolvedVariable) {
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	key := rv.Ref().Key()
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, rv)
}

// Len reports how many distinct values were collected.
func (s *DependencySet) Len() int {
	return len(s.items)
}

// Items returns a copy of the collected values, or nil when empty.
func (s *DependencySet) Items() []*ResolvedVariable {
	if len(s.items) == 0 {
		return nil
	}
	return append([]*ResolvedVariable(nil), s.items...)
}
