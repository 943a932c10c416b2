// internal/cli/root.go
//
// Command tree for lattice-vars. Every command opens a Runtime for the
// project directory, does its work and closes it again.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// ErrUnresolved is returned when a requested variable produced no value.
var ErrUnresolved = errors.New("unresolved")

// ProgramRunner runs a Bubble Tea model to completion.
type ProgramRunner func(model tea.Model, opts ...tea.ProgramOption) error

// Option customizes the command tree.
type Option func(*settings)

type settings struct {
	lookupEnv func(string) (string, bool)
	runner    ProgramRunner
}

// WithLookupEnv overrides the environment read by the env variable.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(s *settings) {
		s.lookupEnv = fn
	}
}

// WithProgramRunner replaces the Bubble Tea program used by inspect.
func WithProgramRunner(run ProgramRunner) Option {
	return func(s *settings) {
		if run != nil {
			s.runner = run
		}
	}
}

func runProgram(model tea.Model, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(model, opts...).Run()
	return err
}

type rootFlags struct {
	projectDir  string
	metricsAddr string
	verbose     bool
}

// NewRootCommand builds the lattice-vars command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	s := &settings{runner: runProgram}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "lattice-vars",
		Short: "Resolve and render {{variable}} placeholders in prompts",
		Long: `lattice-vars resolves template variables for prompts.

Variables come from the built-ins (today, env, scope, prompt) and from
definitions under .lattice/variables. Placeholders use {{name}} or
{{name:arg}}; values may themselves contain placeholders.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.projectDir, "project", ".", "project directory containing .lattice/")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watch or inspect run")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "mirror log lines to stderr")

	open := func(cmd *cobra.Command) (*Runtime, error) {
		ro := RuntimeOptions{MetricsAddr: flags.metricsAddr, LookupEnv: s.lookupEnv}
		if flags.verbose {
			ro.Verbose = cmd.ErrOrStderr()
		}
		return Open(flags.projectDir, ro)
	}

	root.AddCommand(
		newListCommand(open),
		newResolveCommand(open),
		newRenderCommand(open),
		newWatchCommand(open),
		newInspectCommand(open, s.runner),
	)
	return root
}

type openFunc func(cmd *cobra.Command) (*Runtime, error)

// Execute runs the command tree against os.Args and exits non-zero on error.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
