// Package builtins declares the variables every project gets without writing
// definitions: today, env, scope and prompt.
package builtins

import (
	"fmt"
	"os"
	"time"

	"github.com/kingrea/lattice-prompts/internal/prompt"
	"github.com/kingrea/lattice-prompts/internal/variables"
)

// Options configures the built-in resolvers. The zero value uses the real
// clock, the process environment and no prompt fragments.
type Options struct {
	Clock     func() time.Time
	LookupEnv func(string) (string, bool)
	// Fragments backs the prompt variable. It is skipped when nil.
	Fragments prompt.Store
	// FragmentOptions configure the expander used inside fragments.
	FragmentOptions []prompt.Option
}

// Register declares the built-ins on engine. Disposing the returned handles
// removes them again.
func Register(engine *variables.Engine, opts Options) ([]variables.Handle, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	type builtin struct {
		variable variables.Variable
		resolver variables.Resolver
	}
	all := []builtin{
		{TodayVariable, NewTodayResolver(opts.Clock)},
		{EnvVariable, NewEnvResolver(opts.LookupEnv)},
		{ScopeVariable, NewScopeResolver()},
	}
	if opts.Fragments != nil {
		all = append(all, builtin{prompt.FragmentVariable, prompt.NewFragmentResolver(opts.Fragments, opts.FragmentOptions...)})
	}
	handles := make([]variables.Handle, 0, len(all))
	for _, b := range all {
		h, err := engine.Register(b.variable, b.resolver)
		if err != nil {
			for _, registered := range handles {
				registered.Dispose()
			}
			return nil, fmt.Errorf("builtins: %s: %w", b.variable.Name, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}
