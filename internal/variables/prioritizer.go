package variables

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// SelectResolver returns the resolver that would serve (name, arg), or nil
// when the variable is unknown, no candidate scores above zero or a candidate
// panics while scoring.
func (e *Engine) SelectResolver(ctx context.Context, name, arg string, scope any) Resolver {
	v, ok := e.variables.Get(name)
	if !ok {
		return nil
	}
	entry, ok, err := e.selectResolver(ctx, Request{Variable: v, Arg: arg}, scope)
	if err != nil || !ok {
		return nil
	}
	return entry.resolver
}

// selectResolver scores every candidate and keeps the strictly highest score.
// Ties go to the earliest registration. All scores are collected before the
// decision, so slow scorers run concurrently. A panicking scorer fails the
// selection.
func (e *Engine) selectResolver(ctx context.Context, req Request, scope any) (resolverEntry, bool, error) {
	candidates := e.resolvers.entries(req.Variable.Name)
	if len(candidates) == 0 {
		return resolverEntry{}, false, nil
	}

	scores := make([]int, len(candidates))
	errs := make([]error, len(candidates))
	if len(candidates) == 1 {
		scores[0], errs[0] = safeScore(ctx, candidates[0].resolver, req, scope)
	} else {
		var wg sync.WaitGroup
		for i, candidate := range candidates {
			wg.Add(1)
			go func(i int, r Resolver) {
				defer wg.Done()
				scores[i], errs[i] = safeScore(ctx, r, req, scope)
			}(i, candidate.resolver)
		}
		wg.Wait()
	}
	if err := errors.Join(errs...); err != nil {
		return resolverEntry{}, false, err
	}

	best := -1
	for i, score := range scores {
		if score <= 0 {
			continue
		}
		if best < 0 || score > scores[best] {
			best = i
		}
	}
	if best < 0 {
		return resolverEntry{}, false, nil
	}
	return candidates[best], true, nil
}

func safeScore(ctx context.Context, r Resolver, req Request, scope any) (score int, err error) {
	defer func() {
		if p := recover(); p != nil {
			score, err = 0, fmt.Errorf("%T panicked while scoring: %v", r, p)
		}
	}()
	return r.Score(ctx, req, scope), nil
}
