package builtins

import (
	"context"
	"testing"
	"time"

	"github.com/kingrea/lattice-prompts/internal/prompt"
	"github.com/kingrea/lattice-prompts/internal/variables"
)

var fixed = time.Date(2024, time.March, 9, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixed }

func newEngine(t *testing.T, opts Options) *variables.Engine {
	t.Helper()
	e := variables.New()
	if _, err := Register(e, opts); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return e
}

func expand(t *testing.T, e *variables.Engine, text string, scope any) string {
	t.Helper()
	got, err := prompt.NewExpander(e).Expand(context.Background(), text, prompt.Input{Scope: scope})
	if err != nil {
		t.Fatalf("expand %q: %v", text, err)
	}
	return got.Text
}

func TestTodayFormats(t *testing.T) {
	e := newEngine(t, Options{Clock: fixedClock})
	tests := map[string]string{
		"{{today}}":            "2024-03-09",
		"{{today:iso}}":        "2024-03-09T14:30:00Z",
		"{{today:UNIX}}":       "1709994600",
		"{{today:Jan 2 2006}}": "Mar 9 2024",
	}
	for text, want := range tests {
		if got := expand(t, e, text, nil); got != want {
			t.Fatalf("%s: got %q want %q", text, got, want)
		}
	}
}

func TestEnvScoresZeroWhenUnset(t *testing.T) {
	env := map[string]string{"EDITOR": "vim"}
	e := newEngine(t, Options{LookupEnv: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}})
	if got := expand(t, e, "{{env:EDITOR}} {{env:MISSING}} {{env}}", nil); got != "vim {{env:MISSING}} {{env}}" {
		t.Fatalf("unexpected expansion: %q", got)
	}
}

type testLookupScope map[string]string

func (s testLookupScope) Lookup(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

func TestScopeReadsCallerValues(t *testing.T) {
	e := newEngine(t, Options{})
	if got := expand(t, e, "{{scope:ticket}} {{scope:other}}", map[string]string{"ticket": "LAT-7"}); got != "LAT-7 {{scope:other}}" {
		t.Fatalf("unexpected expansion: %q", got)
	}
	if got := expand(t, e, "{{scope:ticket}}", testLookupScope{"ticket": "LAT-8"}); got != "LAT-8" {
		t.Fatalf("unexpected expansion: %q", got)
	}
	if got := expand(t, e, "{{scope:ticket}}", 42); got != "{{scope:ticket}}" {
		t.Fatalf("unsupported scope should leave placeholder, got %q", got)
	}
}

func TestRegisterPromptOnlyWithFragments(t *testing.T) {
	e := newEngine(t, Options{})
	if _, ok := e.Variables().Get("prompt"); ok {
		t.Fatalf("prompt registered without fragments")
	}

	store := prompt.NewMemoryStore(map[string]string{"sig": "-- sent {{today}}"})
	e = variables.New()
	handles, err := Register(e, Options{Clock: fixedClock, Fragments: store})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(handles) != 4 {
		t.Fatalf("expected 4 handles, got %d", len(handles))
	}
	if got := expand(t, e, "{{prompt:sig}}", nil); got != "-- sent 2024-03-09" {
		t.Fatalf("unexpected expansion: %q", got)
	}
	for _, h := range handles {
		h.Dispose()
	}
	if names := e.Variables().Names(); len(names) != 0 {
		t.Fatalf("expected builtins removed, got %v", names)
	}
}
