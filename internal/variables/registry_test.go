package variables

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func expectChange(t *testing.T, sub Subscription, want Change) {
	t.Helper()
	select {
	case got := <-sub.Events:
		if got != want {
			t.Fatalf("unexpected change: got %+v want %+v", got, want)
		}
	default:
		t.Fatalf("expected change %+v, none delivered", want)
	}
}

func expectNoChange(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case got := <-sub.Events:
		t.Fatalf("unexpected change %+v", got)
	default:
	}
}

func TestRegistryNotifiesOncePerMutation(t *testing.T) {
	reg := NewRegistry()
	sub := reg.Subscribe()
	defer sub.Close()

	h, err := reg.Register(Variable{Name: "today", Description: "current date"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	expectChange(t, sub, Change{Kind: ChangeAdded, Name: "today"})
	expectNoChange(t, sub)

	if _, err := reg.Register(Variable{Name: "today", Description: "replaced"}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	expectChange(t, sub, Change{Kind: ChangeReplaced, Name: "today"})

	got, ok := reg.Get("today")
	if !ok || got.Description != "replaced" {
		t.Fatalf("expected replaced entry, got %+v", got)
	}

	// The original handle no longer owns the entry.
	h.Dispose()
	expectNoChange(t, sub)
	if _, ok := reg.Get("today"); !ok {
		t.Fatalf("stale handle removed the replacement")
	}

	reg.Unregister("today")
	expectChange(t, sub, Change{Kind: ChangeRemoved, Name: "today"})
	reg.Unregister("today")
	expectNoChange(t, sub)
}

func TestRegistryDisposeRestoresShadowedDeclaration(t *testing.T) {
	reg := NewRegistry()
	base := reg.MustRegister(Variable{Name: "today", ID: "builtin"})
	override := reg.MustRegister(Variable{Name: "today", ID: "override"})
	sub := reg.Subscribe()
	defer sub.Close()

	override.Dispose()
	expectChange(t, sub, Change{Kind: ChangeReplaced, Name: "today"})
	if got, ok := reg.Get("today"); !ok || got.ID != "builtin" {
		t.Fatalf("expected builtin declaration restored, got %+v (ok %v)", got, ok)
	}

	base.Dispose()
	expectChange(t, sub, Change{Kind: ChangeRemoved, Name: "today"})
	if _, ok := reg.Get("today"); ok {
		t.Fatalf("expected today removed")
	}
}

func TestRegistryHandleDisposeRemovesEntry(t *testing.T) {
	reg := NewRegistry()
	h := reg.MustRegister(Variable{Name: "env"})
	sub := reg.Subscribe()
	defer sub.Close()
	h.Dispose()
	h.Dispose()
	expectChange(t, sub, Change{Kind: ChangeRemoved, Name: "env"})
	expectNoChange(t, sub)
	if _, ok := reg.Get("env"); ok {
		t.Fatalf("expected env removed")
	}
}

func TestRegistryListIsSnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Variable{Name: "b", Arguments: []Argument{{Name: "x"}}})
	reg.MustRegister(Variable{Name: "a"})

	list := reg.List()
	if diff := cmp.Diff([]string{"a", "b"}, reg.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	list[1].Arguments[0].Name = "mutated"
	if got, _ := reg.Get("b"); got.Arguments[0].Name != "x" {
		t.Fatalf("list leaked a live view: %+v", got)
	}
}

func TestRegistryRejectsInvalidVariables(t *testing.T) {
	reg := NewRegistry()
	for _, v := range []Variable{{}, {Name: "  "}, {Name: "has:colon"}, {Name: "ok", Arguments: []Argument{{}}}} {
		if _, err := reg.Register(v); !errors.Is(err, ErrInvalidVariable) {
			t.Fatalf("expected ErrInvalidVariable for %+v, got %v", v, err)
		}
	}
}

func TestRegistrySubscriptionDropsOldestOnOverflow(t *testing.T) {
	logger := &recordingLogger{}
	reg := NewRegistry(RegistryWithSubscriberCapacity(2), RegistryWithLogger(logger))
	sub := reg.Subscribe()
	for _, name := range []string{"one", "two", "three"} {
		reg.MustRegister(Variable{Name: name})
	}
	expectChange(t, sub, Change{Kind: ChangeAdded, Name: "two"})
	expectChange(t, sub, Change{Kind: ChangeAdded, Name: "three"})
	if len(logger.matching("dropped")) != 1 {
		t.Fatalf("expected one drop log, got %v", logger.lines)
	}
	sub.Close()
	if _, open := <-sub.Events; open {
		t.Fatalf("expected closed channel")
	}
	reg.MustRegister(Variable{Name: "four"})
}

func TestRegistrySuggest(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"today", "todo", "env", "prompt"} {
		reg.MustRegister(Variable{Name: name})
	}
	got := reg.Suggest("tod")
	if len(got) < 2 || got[0] != "todo" {
		t.Fatalf("unexpected suggestions: %v", got)
	}
	if got := reg.Suggest("zzz"); got != nil {
		t.Fatalf("expected no suggestions, got %v", got)
	}
}

func TestResolverRegistryRegisterUnregister(t *testing.T) {
	reg := NewResolverRegistry()
	r := leafD(nil)
	reg.MustRegister(varD, r)
	if got := reg.Resolvers("d"); len(got) != 1 || got[0] != Resolver(r) {
		t.Fatalf("unexpected resolvers: %v", got)
	}
	reg.Unregister(varD, r)
	if got := reg.Resolvers("d"); len(got) != 0 {
		t.Fatalf("expected empty resolvers, got %v", got)
	}
	reg.Unregister(varD, r)

	h := reg.MustRegister(varD, r)
	h.Dispose()
	if got := reg.Resolvers("d"); len(got) != 0 {
		t.Fatalf("expected handle to unregister, got %v", got)
	}
}

type scoreOnly struct{}

func (scoreOnly) Score(context.Context, Request, any) int { return 1 }

type taggedResolver struct {
	tags map[string]string
}

func (taggedResolver) Score(context.Context, Request, any) int { return 1 }

func (r taggedResolver) Resolve(_ context.Context, req Request, _ any) (*ResolvedVariable, error) {
	return &ResolvedVariable{Variable: req.Variable, Value: r.tags[req.Arg]}, nil
}

func TestResolverRegistryRejectsIncomparableResolvers(t *testing.T) {
	e := New()
	if _, err := e.Register(varD, taggedResolver{tags: map[string]string{}}); !errors.Is(err, ErrInvalidResolver) {
		t.Fatalf("expected ErrInvalidResolver for a value type with a map field, got %v", err)
	}
	if _, ok := e.Variables().Get("d"); ok {
		t.Fatalf("rejected resolver must not declare the variable")
	}

	h, err := e.Register(varD, &taggedResolver{tags: map[string]string{"x": "tagged"}})
	if err != nil {
		t.Fatalf("pointer resolver: %v", err)
	}
	got, err := e.Resolve(context.Background(), Ref{Name: "d", Arg: "x"}, nil, nil)
	if err != nil || got == nil || got.Value != "tagged" {
		t.Fatalf("unexpected resolution %+v (err %v)", got, err)
	}
	h.Dispose()
	if len(e.Resolvers().Resolvers("d")) != 0 {
		t.Fatalf("expected resolver removed")
	}
}

func TestResolverRegistryRejectsUnknownVariants(t *testing.T) {
	reg := NewResolverRegistry()
	if _, err := reg.Register(varD, scoreOnly{}); !errors.Is(err, ErrInvalidResolver) {
		t.Fatalf("expected ErrInvalidResolver, got %v", err)
	}
	if _, err := reg.Register(varD, nil); !errors.Is(err, ErrInvalidResolver) {
		t.Fatalf("expected ErrInvalidResolver for nil, got %v", err)
	}
}

func TestEngineRegisterHandleRemovesBoth(t *testing.T) {
	e := New()
	h := mustRegister(t, e, varD, leafD(nil))
	h.Dispose()
	if _, ok := e.Variables().Get("d"); ok {
		t.Fatalf("variable still registered")
	}
	if len(e.Resolvers().Resolvers("d")) != 0 {
		t.Fatalf("resolver still registered")
	}
}
