// Package prompt expands variable placeholders inside prompt templates and
// serves reusable prompt fragments as the `prompt` variable.
package prompt

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/lattice-prompts/internal/placeholder"
	"github.com/kingrea/lattice-prompts/internal/variables"
)

// DefaultConcurrency bounds how many templates ExpandAll renders at once.
const DefaultConcurrency = 8

// Option customizes an Expander.
type Option func(*Expander)

// WithLogger routes best-effort failures to l.
func WithLogger(l variables.Logger) Option {
	return func(x *Expander) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithBestEffort keeps expanding when a resolver fails; the failing
// placeholder stays in the output verbatim and the error is logged.
func WithBestEffort() Option {
	return func(x *Expander) {
		x.bestEffort = true
	}
}

// WithConcurrency bounds how many templates ExpandAll renders in parallel.
// Values below one are ignored.
func WithConcurrency(n int) Option {
	return func(x *Expander) {
		if n > 0 {
			x.concurrency = n
		}
	}
}

// Expander replaces placeholders with resolved variable values.
type Expander struct {
	engine      *variables.Engine
	logger      variables.Logger
	bestEffort  bool
	concurrency int
}

// NewExpander builds an expander that resolves through engine. A nil engine is
// allowed when every call supplies Input.Resolve.
func NewExpander(engine *variables.Engine, opts ...Option) *Expander {
	x := &Expander{
		engine:      engine,
		logger:      discard{},
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(x)
		}
	}
	return x
}

// Input carries the per-call state of an expansion.
type Input struct {
	// Args overrides placeholder values. Keys are raw tokens such as
	// "today" or "prompt:intro".
	Args  map[string]string
	Scope any
	// Cache is shared across the placeholders of one call. A nil cache gets
	// a fresh one.
	Cache *variables.Cache
	// Resolve replaces the engine lookup. Dependency-aware resolvers pass
	// their dependency callback here so nested templates share the caller's
	// cache and cycle tracking.
	Resolve variables.DependencyFunc
}

// Result is the expanded text plus every variable used to produce it,
// dependencies included, in first-seen order.
type Result struct {
	Text      string
	Variables []*variables.ResolvedVariable
}

// Expand resolves every distinct placeholder in text and substitutes all of
// its occurrences. Placeholders that resolve to nothing are left verbatim.
//
// Tokens resolve one after another in document order on the shared cache, so
// when placeholders form a cycle the first occurrence always wins and the
// output does not depend on scheduling.
func (x *Expander) Expand(ctx context.Context, text string, in Input) (Result, error) {
	matches := placeholder.Find(text)
	if len(matches) == 0 {
		return Result{Text: text}, nil
	}
	resolve, err := x.resolverFor(in)
	if err != nil {
		return Result{}, err
	}

	tokens := placeholder.Tokens(text)
	resolved := make(map[string]*variables.ResolvedVariable, len(tokens))
	for _, token := range tokens {
		if _, overridden := in.Args[token]; overridden {
			continue
		}
		ref := variables.ParseRef(token)
		value, err := resolve(ctx, ref)
		if err != nil {
			if x.bestEffort {
				x.logger.Printf("prompt: %s left unexpanded: %v", placeholder.Format(ref), err)
				continue
			}
			return Result{}, fmt.Errorf("prompt: expand: %w", err)
		}
		if value != nil {
			resolved[token] = value
		}
	}

	var used variables.DependencySet
	for _, token := range tokens {
		used.Add(resolved[token])
	}
	out := placeholder.Replace(text, matches, func(m placeholder.Match) (string, bool) {
		if value, ok := in.Args[m.Token]; ok {
			return value, true
		}
		if rv, ok := resolved[m.Token]; ok {
			return rv.Value, true
		}
		return "", false
	})
	return Result{Text: out, Variables: used.Items()}, nil
}

// ExpandAll expands several templates in parallel, bounded by the configured
// concurrency. Each template gets its own cache so renders stay independent;
// in.Cache must be nil. Results keep the order of texts.
func (x *Expander) ExpandAll(ctx context.Context, texts []string, in Input) ([]Result, error) {
	if in.Cache != nil {
		return nil, fmt.Errorf("prompt: expand all: a shared cache would couple the templates")
	}
	results := make([]Result, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			result, err := x.Expand(gctx, text, in)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (x *Expander) resolverFor(in Input) (variables.DependencyFunc, error) {
	if in.Resolve != nil {
		return in.Resolve, nil
	}
	if x.engine == nil {
		return nil, fmt.Errorf("prompt: expander has no engine and no resolve function")
	}
	cache := in.Cache
	if cache == nil {
		cache = variables.NewCache()
	}
	return func(ctx context.Context, ref variables.Ref) (*variables.ResolvedVariable, error) {
		return x.engine.Resolve(ctx, ref, in.Scope, cache)
	}, nil
}

type discard struct{}

func (discard) Printf(string, ...any) {}
