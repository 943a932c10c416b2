package variables

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxDepth bounds how deeply dependency calls may nest.
const DefaultMaxDepth = 64

// Option customizes Engine construction.
type Option func(*Engine)

// WithRegistry shares an existing variable registry.
func WithRegistry(reg *Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.variables = reg
		}
	}
}

// WithResolverRegistry shares an existing resolver registry.
func WithResolverRegistry(reg *ResolverRegistry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.resolvers = reg
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver overrides the default no-op observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithMaxDepth bounds nested dependency depth. Zero disables the limit.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth >= 0 {
			e.maxDepth = depth
		}
	}
}

// WithClock allows tests to control durations reported to the observer.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// Engine resolves variables through the registered resolvers.
type Engine struct {
	variables *Registry
	resolvers *ResolverRegistry
	logger    Logger
	observer  Observer
	tracer    trace.Tracer
	maxDepth  int
	clock     func() time.Time
}

// New constructs an engine with its own registries unless shared ones are
// supplied through options.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   nopLogger{},
		observer: nopObserver{},
		maxDepth: DefaultMaxDepth,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.variables == nil {
		e.variables = NewRegistry(RegistryWithLogger(e.logger))
	}
	if e.resolvers == nil {
		e.resolvers = NewResolverRegistry()
	}
	if e.tracer == nil {
		e.tracer = otel.GetTracerProvider().Tracer("lattice-prompts/variables")
	}
	return e
}

// Variables exposes the variable registry.
func (e *Engine) Variables() *Registry {
	return e.variables
}

// Resolvers exposes the resolver registry.
func (e *Engine) Resolvers() *ResolverRegistry {
	return e.resolvers
}

// Register declares v and contributes resolver for it in one step. Disposing
// the handle removes both.
func (e *Engine) Register(v Variable, resolver Resolver) (Handle, error) {
	resolverHandle, err := e.resolvers.Register(v, resolver)
	if err != nil {
		return Handle{}, err
	}
	variableHandle, err := e.variables.Register(v)
	if err != nil {
		resolverHandle.Dispose()
		return Handle{}, err
	}
	return newHandle(func() {
		resolverHandle.Dispose()
		variableHandle.Dispose()
	}), nil
}

// ResolveName resolves a bare variable name without argument.
func (e *Engine) ResolveName(ctx context.Context, name string, scope any, cache *Cache) (*ResolvedVariable, error) {
	return e.Resolve(ctx, Ref{Name: name}, scope, cache)
}

// Resolve resolves ref. A nil cache gets a fresh one for this call; pass a
// shared cache to reuse results and cycle state across several calls.
//
// Unknown variables, variables without an eligible resolver, cyclic nested
// references and references past the depth limit all yield (nil, nil).
// Resolver errors are returned.
func (e *Engine) Resolve(ctx context.Context, ref Ref, scope any, cache *Cache) (*ResolvedVariable, error) {
	if cache == nil {
		cache = NewCache()
	}
	return e.resolve(ctx, ref, scope, cache, nil, 0)
}

// resolve runs on behalf of parent, the entry whose resolver issued the
// request, or nil for top-level calls.
func (e *Engine) resolve(ctx context.Context, ref Ref, scope any, cache *Cache, parent *entry, depth int) (*ResolvedVariable, error) {
	key := ref.Key()

	cache.mu.Lock()
	if existing, ok := cache.entries[key]; ok {
		if existing.state.Settled() {
			cache.mu.Unlock()
			e.observer.CacheHit(ref.Name)
			return existing.result()
		}
		if parent != nil && cache.reaches(existing, parent) {
			cache.mu.Unlock()
			e.observer.CycleDetected(ref.Name)
			e.logger.Printf("variables: cycle detected while resolving %q; the nested reference stays unresolved", ref.Name)
			return nil, nil
		}
		if parent != nil {
			parent.waitingOn[existing] = struct{}{}
		}
		cache.mu.Unlock()
		e.observer.CacheShared(ref.Name)
		defer cache.stopWaiting(parent, existing)
		select {
		case <-existing.done:
			return existing.result()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	v, known := e.variables.Get(ref.Name)
	if !known {
		cache.mu.Unlock()
		return nil, nil
	}
	if e.maxDepth > 0 && depth > e.maxDepth {
		cache.mu.Unlock()
		e.logger.Printf("variables: %q exceeds the maximum dependency depth of %d; the nested reference stays unresolved", ref.Name, e.maxDepth)
		return nil, nil
	}
	current := newEntry(ref)
	cache.entries[key] = current
	if parent != nil {
		parent.waitingOn[current] = struct{}{}
	}
	cache.mu.Unlock()
	defer cache.stopWaiting(parent, current)
	e.observer.CacheMiss(ref.Name)

	var (
		value *ResolvedVariable
		err   error
	)
	defer func() { cache.settle(current, value, err) }()
	value, err = e.invoke(ctx, Request{Variable: v, Arg: ref.Arg}, scope, cache, current, depth)
	return value, err
}

func (e *Engine) invoke(ctx context.Context, req Request, scope any, cache *Cache, current *entry, depth int) (value *ResolvedVariable, err error) {
	selected, ok, err := e.selectResolver(ctx, req, scope)
	if err != nil {
		return nil, fmt.Errorf("variables: resolve %s: %w", req.Ref(), err)
	}
	if !ok {
		return nil, nil
	}
	cache.markInFlight(current)

	ctx, span := e.tracer.Start(ctx, "variables.resolve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("variable.name", req.Variable.Name),
			attribute.String("variable.arg", req.Arg),
			attribute.Int("variable.depth", depth),
		),
	)
	started := e.clock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("variables: resolve %s: resolver panicked: %v", req.Ref(), r)
		}
		e.observer.Resolved(req.Variable.Name, e.clock().Sub(started), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	switch selected.kind {
	case kindDependency:
		resolver := selected.resolver.(DependencyResolver)
		dependency := func(ctx context.Context, ref Ref) (*ResolvedVariable, error) {
			return e.resolve(ctx, ref, scope, cache, current, depth+1)
		}
		value, err = resolver.Resolve(ctx, req, scope, dependency)
	default:
		value, err = selected.resolver.(SimpleResolver).Resolve(ctx, req, scope)
	}
	if err != nil {
		return nil, fmt.Errorf("variables: resolve %s: %w", req.Ref(), err)
	}
	return value, nil
}
