package plugins

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/lattice-prompts/internal/builtins"
	"github.com/kingrea/lattice-prompts/internal/variables"
)

const sampleYAML = `name: team
value: "{{shout:platform}} team"
`

func writeDefinition(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadAllRejectsDuplicates(t *testing.T) {
	root := t.TempDir()
	writeDefinition(t, root, "team.yaml", sampleYAML)
	writeGoPlugin(t, root, "vars.go", goPluginSource)
	_, err := LoadAll(root)
	if err == nil || !strings.Contains(err.Error(), "duplicate variable team") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLoaderRegistersAcrossDirs(t *testing.T) {
	root := t.TempDir()
	shared := filepath.Join(root, "shared")
	local := filepath.Join(root, "local")
	writeGoPlugin(t, mkdir(t, shared), "shout.go", `package main

import "strings"

func Variables() ([]map[string]any, error) {
	return []map[string]any{{"name": "shout", "func": "Shout"}}, nil
}

func Shout(arg string) (string, error) { return strings.ToUpper(arg), nil }
`)
	writeDefinition(t, local, "team.yaml", sampleYAML)

	engine := variables.New()
	loader := NewLoader(engine)
	if err := loader.Load(shared, local); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := engine.ResolveName(context.Background(), "team", nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Value != "PLATFORM team" {
		t.Fatalf("unexpected value %q", got.Value)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0].Ref().String() != "shout:platform" {
		t.Fatalf("expected shout dependency, got %+v", got.Dependencies)
	}
	if v, _ := engine.Variables().Get("team"); v.ID != filepath.Join(local, "team.yaml") {
		t.Fatalf("expected variable ID to record its source, got %q", v.ID)
	}
	if len(loader.Files()) != 2 {
		t.Fatalf("expected 2 loaded files, got %d", len(loader.Files()))
	}
}

func TestLoaderReloadReplacesDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "a.yaml", "name: a\nvalue: one\n")
	writeDefinition(t, dir, "b.yaml", "name: b\nvalue: bee\n")

	engine := variables.New()
	loader := NewLoader(engine)
	if err := loader.Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := engine.Variables().Subscribe()
	defer sub.Close()

	writeDefinition(t, dir, "a.yaml", "name: a\nvalue: two\n")
	if err := os.Remove(filepath.Join(dir, "b.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := loader.Load(dir); err != nil {
		t.Fatalf("reload: %v", err)
	}

	var changes []variables.Change
	for len(changes) < 2 {
		select {
		case c := <-sub.Events:
			changes = append(changes, c)
		default:
			t.Fatalf("expected 2 changes, got %v", changes)
		}
	}
	if changes[0] != (variables.Change{Kind: variables.ChangeReplaced, Name: "a"}) ||
		changes[1] != (variables.Change{Kind: variables.ChangeRemoved, Name: "b"}) {
		t.Fatalf("unexpected changes %v", changes)
	}
	got, err := engine.ResolveName(context.Background(), "a", nil, nil)
	if err != nil || got.Value != "two" {
		t.Fatalf("expected reloaded value, got %+v (err %v)", got, err)
	}
	if n := len(engine.Resolvers().Resolvers("a")); n != 1 {
		t.Fatalf("expected old resolver removed, got %d resolvers", n)
	}

	writeDefinition(t, dir, "broken.yaml", "name: [")
	if err := loader.Load(dir); err == nil {
		t.Fatalf("expected reload error")
	}
	if _, ok := engine.Variables().Get("a"); !ok {
		t.Fatalf("failed reload must keep previous definitions")
	}

	loader.Close()
	if names := engine.Variables().Names(); len(names) != 0 {
		t.Fatalf("expected close to unregister everything, got %v", names)
	}
}

func TestLoaderRestoresShadowedBuiltin(t *testing.T) {
	dir := t.TempDir()
	engine := variables.New()
	clock := func() time.Time { return time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC) }
	if _, err := builtins.Register(engine, builtins.Options{Clock: clock}); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	writeDefinition(t, dir, "today.yaml", "name: today\nvalue: overridden\npriority: 5\n")

	loader := NewLoader(engine)
	if err := loader.Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := engine.ResolveName(context.Background(), "today", nil, nil)
	if err != nil || got == nil || got.Value != "overridden" {
		t.Fatalf("expected definition to win, got %+v (err %v)", got, err)
	}

	sub := engine.Variables().Subscribe()
	defer sub.Close()
	if err := os.Remove(filepath.Join(dir, "today.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := loader.Load(dir); err != nil {
		t.Fatalf("reload: %v", err)
	}
	select {
	case c := <-sub.Events:
		if c != (variables.Change{Kind: variables.ChangeReplaced, Name: "today"}) {
			t.Fatalf("unexpected change %+v", c)
		}
	default:
		t.Fatalf("expected a replace notification for today")
	}

	v, ok := engine.Variables().Get("today")
	if !ok || v.ID != builtins.TodayVariable.ID {
		t.Fatalf("expected built-in declaration back, got %+v (ok %v)", v, ok)
	}
	got, err = engine.ResolveName(context.Background(), "today", nil, nil)
	if err != nil || got == nil || got.Value != "2024-03-09" {
		t.Fatalf("expected built-in value, got %+v (err %v)", got, err)
	}

	loader.Close()
	if _, ok := engine.Variables().Get("today"); !ok {
		t.Fatalf("closing the loader must not remove built-ins")
	}
}

func mkdir(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return dir
}
