package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kingrea/lattice-prompts/internal/placeholder"
	"github.com/kingrea/lattice-prompts/internal/prompt"
	"github.com/kingrea/lattice-prompts/internal/tui"
	"github.com/kingrea/lattice-prompts/internal/variables"
	"github.com/kingrea/lattice-prompts/plugins"
)

type styles struct {
	name  lipgloss.Style
	muted lipgloss.Style
	warn  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		name:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		muted: r.NewStyle().Foreground(lipgloss.Color("#888888")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
}

func newListCommand(open openFunc) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			reg := rt.Engine.Variables()
			vars := reg.List()
			if filter != "" {
				vars = vars[:0]
				for _, name := range reg.Suggest(filter) {
					if v, ok := reg.Get(name); ok {
						vars = append(vars, v)
					}
				}
			}

			out := cmd.OutOrStdout()
			st := newStyles(out)
			for _, v := range vars {
				line := st.name.Render(v.Name)
				if len(v.Arguments) > 0 {
					args := make([]string, len(v.Arguments))
					for i, arg := range v.Arguments {
						args[i] = arg.Name
						if !arg.Required {
							args[i] += "?"
						}
					}
					line += st.muted.Render(" :" + strings.Join(args, ","))
				}
				if v.ID != "" {
					line += st.muted.Render(" [" + v.ID + "]")
				}
				fmt.Fprintln(out, line)
				if desc := strings.TrimSpace(v.Description); desc != "" {
					fmt.Fprintln(out, "  "+desc)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "fuzzy filter on variable names")
	return cmd
}

func newResolveCommand(open openFunc) *cobra.Command {
	var (
		showDeps bool
		scope    []string
	)
	cmd := &cobra.Command{
		Use:   "resolve NAME[:ARG]",
		Short: "Resolve a single variable and print its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeValues, err := parsePairs("scope", scope)
			if err != nil {
				return err
			}
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ref := variables.ParseRef(args[0])
			value, err := rt.Engine.Resolve(cmd.Context(), ref, scopeValues, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			st := newStyles(out)
			if value == nil {
				fmt.Fprintln(out, st.warn.Render(placeholder.Format(ref)+" did not resolve"))
				if _, known := rt.Engine.Variables().Get(ref.Name); !known {
					if suggestions := rt.Engine.Variables().Suggest(ref.Name); len(suggestions) > 0 {
						fmt.Fprintln(out, st.muted.Render("did you mean: "+strings.Join(suggestions, ", ")))
					}
				}
				return fmt.Errorf("%w: %s", ErrUnresolved, ref)
			}

			fmt.Fprintln(out, value.Value)
			if showDeps && len(value.Dependencies) > 0 {
				fmt.Fprintln(out, st.muted.Render(fmt.Sprintf("dependencies (%d):", len(value.Dependencies))))
				for _, dep := range value.Dependencies {
					fmt.Fprintf(out, "  %s = %s\n", st.name.Render(dep.Ref().String()), oneLine(dep.Value))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDeps, "deps", false, "print the flattened dependency list")
	cmd.Flags().StringArrayVar(&scope, "scope", nil, "scope value as key=value, read by {{scope:key}}")
	return cmd
}

type renderFlags struct {
	set   []string
	scope []string
}

func (f *renderFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "override a placeholder as token=value")
	cmd.Flags().StringArrayVar(&f.scope, "scope", nil, "scope value as key=value, read by {{scope:key}}")
}

func (f *renderFlags) input() (prompt.Input, error) {
	args, err := parsePairs("set", f.set)
	if err != nil {
		return prompt.Input{}, err
	}
	scope, err := parsePairs("scope", f.scope)
	if err != nil {
		return prompt.Input{}, err
	}
	return prompt.Input{Args: args, Scope: scope}, nil
}

func newRenderCommand(open openFunc) *cobra.Command {
	flags := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render FILE|- [FILE...]",
		Short: "Expand every placeholder in one or more templates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input()
			if err != nil {
				return err
			}
			texts := make([]string, len(args))
			stdinUsed := false
			for i, path := range args {
				if path == "-" {
					if stdinUsed {
						return fmt.Errorf("stdin can only be rendered once")
					}
					stdinUsed = true
				}
				if texts[i], err = readTemplate(cmd.InOrStdin(), path); err != nil {
					return err
				}
			}
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			results, err := rt.Expander.ExpandAll(cmd.Context(), texts, in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 1 {
				_, err = io.WriteString(out, results[0].Text)
				return err
			}
			st := newStyles(out)
			for i, result := range results {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, st.muted.Render("==> "+args[i]+" <=="))
				fmt.Fprintln(out, strings.TrimRight(result.Text, "\n"))
			}
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func newWatchCommand(open openFunc) *cobra.Command {
	flags := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Render a template again whenever definitions or fragments change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input()
			if err != nil {
				return err
			}
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			st := newStyles(out)
			render := func() {
				text, err := readTemplate(nil, args[0])
				if err == nil {
					var result prompt.Result
					in.Cache = variables.NewCache()
					result, err = rt.Expander.Expand(ctx, text, in)
					if err == nil {
						fmt.Fprintln(out, result.Text)
					}
				}
				if err != nil {
					fmt.Fprintln(out, st.warn.Render("render failed: "+err.Error()))
				}
				fmt.Fprintln(out, st.muted.Render("--- watching for changes, ctrl+c to stop"))
			}

			reloaded := make(chan error, 1)
			watcher := rt.Watcher(plugins.WithReloadHook(func(err error) {
				select {
				case reloaded <- err:
				default:
				}
			}))
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()
			rt.ServeMetrics(ctx)

			render()
			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-reloaded:
					if err != nil {
						fmt.Fprintln(out, st.warn.Render("reload failed, keeping previous definitions: "+err.Error()))
						continue
					}
					render()
				}
			}
		},
	}
	flags.bind(cmd)
	return cmd
}

func newInspectCommand(open openFunc, run ProgramRunner) *cobra.Command {
	var scope []string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Browse variables and their dependency chains in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeValues, err := parsePairs("scope", scope)
			if err != nil {
				return err
			}
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			watcher := rt.Watcher()
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()
			rt.ServeMetrics(ctx)

			app := tui.NewApp(rt.Engine, tui.WithScope(scopeValues), tui.WithContext(ctx))
			defer app.Close()
			return run(app,
				tea.WithAltScreen(),
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
		},
	}
	cmd.Flags().StringArrayVar(&scope, "scope", nil, "scope value as key=value, read by {{scope:key}}")
	return cmd
}

// readTemplate reads path, or stdin when path is "-".
func readTemplate(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		if stdin == nil {
			return "", fmt.Errorf("stdin is not available")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return string(data), nil
}

func parsePairs(flag string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--%s %q: expected key=value", flag, raw)
		}
		out[key] = value
	}
	return out, nil
}

func oneLine(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ⏎ ")
}
