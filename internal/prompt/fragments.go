package prompt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

// FragmentVariable is the variable served by FragmentResolver. Its argument is
// the fragment id, so `{{prompt:intro}}` expands the fragment named intro.
var FragmentVariable = variables.Variable{
	Name:        "prompt",
	ID:          "builtin",
	Description: "Expands a stored prompt fragment, resolving the placeholders inside it",
	Arguments:   []variables.Argument{{Name: "id", Description: "fragment id", Required: true}},
}

// Store serves prompt fragments by id.
type Store interface {
	Fragment(id string) (string, bool)
	IDs() []string
}

// MemoryStore is a concurrency-safe in-memory Store.
type MemoryStore struct {
	mu        sync.RWMutex
	fragments map[string]string
}

// NewMemoryStore seeds a store with fragments.
func NewMemoryStore(fragments map[string]string) *MemoryStore {
	s := &MemoryStore{fragments: make(map[string]string, len(fragments))}
	for id, text := range fragments {
		s.fragments[strings.TrimSpace(id)] = text
	}
	return s
}

// Fragment returns the fragment text for id.
func (s *MemoryStore) Fragment(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.fragments[strings.TrimSpace(id)]
	return text, ok
}

// IDs lists fragment ids in sorted order.
func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.fragments))
	for id := range s.fragments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Set stores or replaces a fragment.
func (s *MemoryStore) Set(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments[strings.TrimSpace(id)] = text
}

// Delete removes a fragment if present.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fragments, strings.TrimSpace(id))
}

// Replace swaps the full fragment set, used when a fragment directory is
// reloaded.
func (s *MemoryStore) Replace(fragments map[string]string) {
	next := make(map[string]string, len(fragments))
	for id, text := range fragments {
		next[strings.TrimSpace(id)] = text
	}
	s.mu.Lock()
	s.fragments = next
	s.mu.Unlock()
}

// ReadFragmentDir reads every fragment file in dir. The id of a fragment is its
// file name without extension. Missing directories yield no fragments.
func ReadFragmentDir(dir string) (map[string]string, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("prompt: read %s: %w", trimmed, err)
	}
	fragments := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || !IsFragmentFile(entry.Name()) {
			continue
		}
		path := filepath.Join(trimmed, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("prompt: read %s: %w", path, err)
		}
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if _, dup := fragments[id]; dup {
			return nil, fmt.Errorf("prompt: fragment %q defined more than once in %s", id, trimmed)
		}
		fragments[id] = strings.TrimRight(string(data), "\n")
	}
	return fragments, nil
}

// LoadFragmentDir reads dir into a new MemoryStore.
func LoadFragmentDir(dir string) (*MemoryStore, error) {
	fragments, err := ReadFragmentDir(dir)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(fragments), nil
}

// IsFragmentFile reports whether name has a fragment extension.
func IsFragmentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".md", ".txt", ".prompt":
		return true
	default:
		return false
	}
}

// FragmentResolver resolves the `prompt` variable by expanding the requested
// fragment. Placeholders inside the fragment resolve through the dependency
// callback, so fragments may include each other and cycles are cut by the
// engine.
type FragmentResolver struct {
	store    Store
	expander *Expander
}

// NewFragmentResolver serves fragments from store.
func NewFragmentResolver(store Store, opts ...Option) *FragmentResolver {
	return &FragmentResolver{store: store, expander: NewExpander(nil, opts...)}
}

// Score is 1 when the fragment exists and 0 otherwise.
func (r *FragmentResolver) Score(_ context.Context, req variables.Request, _ any) int {
	if r.store == nil {
		return 0
	}
	if _, ok := r.store.Fragment(req.Arg); ok {
		return 1
	}
	return 0
}

// Resolve expands the fragment named by req.Arg.
func (r *FragmentResolver) Resolve(ctx context.Context, req variables.Request, scope any, resolve variables.DependencyFunc) (*variables.ResolvedVariable, error) {
	text, ok := r.store.Fragment(req.Arg)
	if !ok {
		return nil, nil
	}
	result, err := r.expander.Expand(ctx, text, Input{Scope: scope, Resolve: resolve})
	if err != nil {
		return nil, fmt.Errorf("fragment %s: %w", req.Arg, err)
	}
	return &variables.ResolvedVariable{
		Variable:     req.Variable,
		Arg:          req.Arg,
		Value:        result.Text,
		Dependencies: result.Variables,
	}, nil
}
