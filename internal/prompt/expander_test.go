package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

type memoLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *memoLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *memoLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func constant(value string, calls *atomic.Int32) variables.SimpleResolver {
	return variables.NewSimpleResolver(nil, func(_ context.Context, req variables.Request, _ any) (*variables.ResolvedVariable, error) {
		if calls != nil {
			calls.Add(1)
		}
		v := value
		if req.Arg != "" {
			v += "(" + req.Arg + ")"
		}
		return &variables.ResolvedVariable{Variable: req.Variable, Arg: req.Arg, Value: v}, nil
	})
}

func newEngine(t *testing.T) *variables.Engine {
	t.Helper()
	e := variables.New()
	if _, err := e.Register(variables.Variable{Name: "user"}, constant("ada", nil)); err != nil {
		t.Fatalf("register user: %v", err)
	}
	if _, err := e.Register(variables.Variable{Name: "greeting"}, variables.NewDependencyResolver(nil,
		func(ctx context.Context, req variables.Request, _ any, resolve variables.DependencyFunc) (*variables.ResolvedVariable, error) {
			user, err := resolve(ctx, variables.Ref{Name: "user"})
			if err != nil {
				return nil, err
			}
			var deps variables.DependencySet
			deps.Add(user)
			return &variables.ResolvedVariable{Variable: req.Variable, Value: "hello " + user.Value, Dependencies: deps.Items()}, nil
		})); err != nil {
		t.Fatalf("register greeting: %v", err)
	}
	return e
}

func refs(values []*variables.ResolvedVariable) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Ref().String()
	}
	return out
}

func TestExpandReplacesEveryOccurrence(t *testing.T) {
	x := NewExpander(newEngine(t))
	got, err := x.Expand(context.Background(), "{{greeting}}! {{ user }} / {{{user}}} / {{missing:1}}", Input{})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got.Text != "hello ada! ada / ada / {{missing:1}}" {
		t.Fatalf("unexpected text: %q", got.Text)
	}
	if diff := cmp.Diff([]string{"greeting", "user"}, refs(got.Variables)); diff != "" {
		t.Fatalf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandWithoutPlaceholdersReturnsInput(t *testing.T) {
	x := NewExpander(nil)
	got, err := x.Expand(context.Background(), "plain text", Input{})
	if err != nil || got.Text != "plain text" || got.Variables != nil {
		t.Fatalf("unexpected result %+v (err %v)", got, err)
	}
	if _, err := x.Expand(context.Background(), "{{user}}", Input{}); err == nil {
		t.Fatalf("expected error without engine or resolve function")
	}
}

func TestExpandArgsOverrideResolvers(t *testing.T) {
	var calls atomic.Int32
	e := variables.New()
	e.Register(variables.Variable{Name: "today"}, constant("real", &calls))
	x := NewExpander(e)
	got, err := x.Expand(context.Background(), "{{today}} {{today:iso}}", Input{Args: map[string]string{"today": "fixed"}})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got.Text != "fixed real(iso)" {
		t.Fatalf("unexpected text: %q", got.Text)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected only the non-overridden token to resolve, got %d calls", calls.Load())
	}
}

func TestExpandSharesCacheAcrossCalls(t *testing.T) {
	var calls atomic.Int32
	e := variables.New()
	e.Register(variables.Variable{Name: "d"}, constant("D", &calls))
	x := NewExpander(e, WithConcurrency(2))
	cache := variables.NewCache()
	for i := 0; i < 3; i++ {
		got, err := x.Expand(context.Background(), "{{d:arg1}} {{d:arg2}} {{d:arg1}}", Input{Cache: cache})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		if got.Text != "D(arg1) D(arg2) D(arg1)" {
			t.Fatalf("unexpected text: %q", got.Text)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one call per distinct key, got %d", calls.Load())
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 cache entries, got %d", cache.Len())
	}
}

func TestExpandErrorPolicy(t *testing.T) {
	boom := errors.New("boom")
	e := variables.New()
	e.Register(variables.Variable{Name: "user"}, constant("ada", nil))
	e.Register(variables.Variable{Name: "broken"}, variables.NewSimpleResolver(nil,
		func(context.Context, variables.Request, any) (*variables.ResolvedVariable, error) {
			return nil, boom
		}))

	if _, err := NewExpander(e).Expand(context.Background(), "{{user}} {{broken}}", Input{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	logger := &memoLogger{}
	got, err := NewExpander(e, WithBestEffort(), WithLogger(logger)).Expand(context.Background(), "{{user}} {{broken}}", Input{})
	if err != nil {
		t.Fatalf("best effort expand: %v", err)
	}
	if got.Text != "ada {{broken}}" {
		t.Fatalf("unexpected text: %q", got.Text)
	}
	lines := logger.snapshot()
	if len(lines) != 1 || !strings.Contains(lines[0], "{{broken}}") {
		t.Fatalf("expected one log line naming the placeholder, got %v", lines)
	}
}

func TestExpandPassesScope(t *testing.T) {
	e := variables.New()
	e.Register(variables.Variable{Name: "who"}, variables.NewSimpleResolver(nil,
		func(_ context.Context, req variables.Request, scope any) (*variables.ResolvedVariable, error) {
			name, _ := scope.(string)
			return &variables.ResolvedVariable{Variable: req.Variable, Value: name}, nil
		}))
	got, err := NewExpander(e).Expand(context.Background(), "hi {{who}}", Input{Scope: "grace"})
	if err != nil || got.Text != "hi grace" {
		t.Fatalf("unexpected result %q (err %v)", got.Text, err)
	}
}

func mutual(label, other string) variables.DependencyResolver {
	return variables.NewDependencyResolver(nil,
		func(ctx context.Context, req variables.Request, _ any, resolve variables.DependencyFunc) (*variables.ResolvedVariable, error) {
			nested, err := resolve(ctx, variables.Ref{Name: other})
			if err != nil {
				return nil, err
			}
			value := label
			var deps variables.DependencySet
			if nested != nil {
				value += "+" + nested.Value
				deps.Add(nested)
			}
			return &variables.ResolvedVariable{Variable: req.Variable, Value: value, Dependencies: deps.Items()}, nil
		})
}

func TestExpandCutsCyclesInDocumentOrder(t *testing.T) {
	e := variables.New()
	e.Register(variables.Variable{Name: "a"}, mutual("A", "b"))
	e.Register(variables.Variable{Name: "b"}, mutual("B", "a"))
	x := NewExpander(e, WithConcurrency(4))
	for i := 0; i < 200; i++ {
		got, err := x.Expand(context.Background(), "{{a}} / {{b}}", Input{})
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		if got.Text != "A+B / B" {
			t.Fatalf("render %d: expected first placeholder to win the cycle, got %q", i, got.Text)
		}
	}
}

func TestExpandAllRendersEachTemplateIndependently(t *testing.T) {
	e := variables.New()
	e.Register(variables.Variable{Name: "a"}, mutual("A", "b"))
	e.Register(variables.Variable{Name: "b"}, mutual("B", "a"))
	x := NewExpander(e, WithConcurrency(2))
	got, err := x.ExpandAll(context.Background(), []string{"{{a}}", "{{b}}", "plain"}, Input{})
	if err != nil {
		t.Fatalf("expand all: %v", err)
	}
	texts := make([]string, len(got))
	for i, r := range got {
		texts[i] = r.Text
	}
	if diff := cmp.Diff([]string{"A+B", "B+A", "plain"}, texts); diff != "" {
		t.Fatalf("texts mismatch (-want +got):\n%s", diff)
	}
	if _, err := x.ExpandAll(context.Background(), []string{"{{a}}"}, Input{Cache: variables.NewCache()}); err == nil {
		t.Fatalf("expected shared cache to be rejected")
	}
}
