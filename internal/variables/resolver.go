package variables

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrInvalidResolver is returned when a resolver cannot be registered.
var ErrInvalidResolver = errors.New("variables: invalid resolver")

// Resolver is the capability shared by every resolver variant. Score reports
// how confident the resolver is that it can serve the request; a score of zero
// or less excludes it.
type Resolver interface {
	Score(ctx context.Context, req Request, scope any) int
}

// SimpleResolver produces a value without consulting other variables.
type SimpleResolver interface {
	Resolver
	Resolve(ctx context.Context, req Request, scope any) (*ResolvedVariable, error)
}

// DependencyFunc resolves a nested variable through the caller's cache.
type DependencyFunc func(ctx context.Context, ref Ref) (*ResolvedVariable, error)

// DependencyResolver may resolve other variables while producing its value.
// It is responsible for reporting the dependencies it used in the returned
// ResolvedVariable.
type DependencyResolver interface {
	Resolver
	Resolve(ctx context.Context, req Request, scope any, resolve DependencyFunc) (*ResolvedVariable, error)
}

type resolverKind int

const (
	kindSimple resolverKind = iota + 1
	kindDependency
)

// classify detects the resolver variant once, at registration time.
func classify(r Resolver) (resolverKind, error) {
	if r == nil {
		return 0, fmt.Errorf("%w: resolver is required", ErrInvalidResolver)
	}
	if !reflect.TypeOf(r).Comparable() {
		return 0, fmt.Errorf("%w: %T is not comparable; register a pointer", ErrInvalidResolver, r)
	}
	switch r.(type) {
	case DependencyResolver:
		return kindDependency, nil
	case SimpleResolver:
		return kindSimple, nil
	default:
		return 0, fmt.Errorf("%w: %T implements neither SimpleResolver nor DependencyResolver", ErrInvalidResolver, r)
	}
}

type resolverEntry struct {
	resolver Resolver
	kind     resolverKind
}

// ResolverRegistry maps variable names to their candidate resolvers in
// registration order. Resolvers are matched by identity, so Register rejects
// implementations whose dynamic type is not comparable.
type ResolverRegistry struct {
	mu        sync.RWMutex
	resolvers map[string][]resolverEntry
}

// NewResolverRegistry returns an empty registry.
func NewResolverRegistry() *ResolverRegistry {
	return &ResolverRegistry{resolvers: map[string][]resolverEntry{}}
}

// Register appends r to the candidates for v.Name.
func (r *ResolverRegistry) Register(v Variable, resolver Resolver) (Handle, error) {
	if err := v.Validate(); err != nil {
		return Handle{}, err
	}
	kind, err := classify(resolver)
	if err != nil {
		return Handle{}, fmt.Errorf("%w (variable %s)", err, v.Name)
	}
	name := v.clone().Name
	r.mu.Lock()
	r.resolvers[name] = append(r.resolvers[name], resolverEntry{resolver: resolver, kind: kind})
	r.mu.Unlock()
	return newHandle(func() { r.unregister(name, resolver) }), nil
}

// MustRegister panics if registration fails.
func (r *ResolverRegistry) MustRegister(v Variable, resolver Resolver) Handle {
	h, err := r.Register(v, resolver)
	if err != nil {
		panic(err)
	}
	return h
}

// Unregister removes the given resolver instance from v's candidates.
func (r *ResolverRegistry) Unregister(v Variable, resolver Resolver) {
	r.unregister(v.clone().Name, resolver)
}

func (r *ResolverRegistry) unregister(name string, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.resolvers[name]
	for i, entry := range entries {
		if entry.resolver != resolver {
			continue
		}
		remaining := make([]resolverEntry, 0, len(entries)-1)
		remaining = append(remaining, entries[:i]...)
		remaining = append(remaining, entries[i+1:]...)
		if len(remaining) == 0 {
			delete(r.resolvers, name)
		} else {
			r.resolvers[name] = remaining
		}
		return
	}
}

// Resolvers returns the candidates registered for name in registration order.
func (r *ResolverRegistry) Resolvers(name string) []Resolver {
	entries := r.entries(name)
	out := make([]Resolver, len(entries))
	for i, entry := range entries {
		out[i] = entry.resolver
	}
	return out
}

func (r *ResolverRegistry) entries(name string) []resolverEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]resolverEntry(nil), r.resolvers[name]...)
}

// ScoreFunc computes a resolver's confidence for a request.
type ScoreFunc func(ctx context.Context, req Request, scope any) int

// ConstantScore returns a ScoreFunc that always reports score.
func ConstantScore(score int) ScoreFunc {
	return func(context.Context, Request, any) int { return score }
}

// SimpleFunc produces a value for a leaf resolver.
type SimpleFunc func(ctx context.Context, req Request, scope any) (*ResolvedVariable, error)

// DependencyResolveFunc produces a value for a dependency-aware resolver.
type DependencyResolveFunc func(ctx context.Context, req Request, scope any, resolve DependencyFunc) (*ResolvedVariable, error)

type simpleFuncResolver struct {
	score   ScoreFunc
	resolve SimpleFunc
}

// NewSimpleResolver adapts plain functions into a SimpleResolver. A nil score
// function scores 1.
func NewSimpleResolver(score ScoreFunc, resolve SimpleFunc) SimpleResolver {
	if score == nil {
		score = ConstantScore(1)
	}
	return &simpleFuncResolver{score: score, resolve: resolve}
}

func (r *simpleFuncResolver) Score(ctx context.Context, req Request, scope any) int {
	return r.score(ctx, req, scope)
}

func (r *simpleFuncResolver) Resolve(ctx context.Context, req Request, scope any) (*ResolvedVariable, error) {
	if r.resolve == nil {
		return nil, nil
	}
	return r.resolve(ctx, req, scope)
}

type dependencyFuncResolver struct {
	score   ScoreFunc
	resolve DependencyResolveFunc
}

// NewDependencyResolver adapts plain functions into a DependencyResolver. A nil
// score function scores 1.
func NewDependencyResolver(score ScoreFunc, resolve DependencyResolveFunc) DependencyResolver {
	if score == nil {
		score = ConstantScore(1)
	}
	return &dependencyFuncResolver{score: score, resolve: resolve}
}

func (r *dependencyFuncResolver) Score(ctx context.Context, req Request, scope any) int {
	return r.score(ctx, req, scope)
}

func (r *dependencyFuncResolver) Resolve(ctx context.Context, req Request, scope any, resolve DependencyFunc) (*ResolvedVariable, error) {
	if r.resolve == nil {
		return nil, nil
	}
	return r.resolve(ctx, req, scope, resolve)
}
