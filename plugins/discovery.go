package plugins

import (
	"fmt"
	"sync"

	"github.com/kingrea/lattice-prompts/internal/prompt"
	"github.com/kingrea/lattice-prompts/internal/variables"
)

// LoadAll reads YAML and Go definitions from every dir. A variable defined
// twice is an error naming both sources.
func LoadAll(dirs ...string) ([]DefinitionFile, error) {
	var all []DefinitionFile
	seen := make(map[string]string)
	for _, dir := range dirs {
		defs, err := loadAllDefinitionFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, file := range defs {
			name := file.Definition.Name
			if existing, ok := seen[name]; ok {
				return nil, fmt.Errorf("plugin: duplicate variable %s (%s and %s)", name, existing, file.Path)
			}
			seen[name] = file.Path
			all = append(all, file)
		}
	}
	return all, nil
}

func loadAllDefinitionFiles(dir string) ([]DefinitionFile, error) {
	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	return append(yamlDefs, goDefs...), nil
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger reports reloads to l.
func WithLoaderLogger(l variables.Logger) LoaderOption {
	return func(loader *Loader) {
		if l != nil {
			loader.logger = l
		}
	}
}

// WithExpanderOptions configures how definition text is expanded.
func WithExpanderOptions(opts ...prompt.Option) LoaderOption {
	return func(loader *Loader) {
		loader.expanderOpts = append(loader.expanderOpts, opts...)
	}
}

// Loader registers on-disk definitions with an engine and swaps them out
// when they are reloaded.
type Loader struct {
	engine       *variables.Engine
	logger       variables.Logger
	expanderOpts []prompt.Option

	mu      sync.Mutex
	handles []variables.Handle
	files   []DefinitionFile
}

// NewLoader returns a loader registering into engine.
func NewLoader(engine *variables.Engine, opts ...LoaderOption) *Loader {
	l := &Loader{engine: engine, logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load reads dirs and replaces the previously loaded definitions. On error
// the previous definitions stay registered.
//
// New definitions are registered before the old handles are disposed, so a
// variable present in both generations sees one replace notification and
// only variables that disappeared are removed.
func (l *Loader) Load(dirs ...string) error {
	files, err := LoadAll(dirs...)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	handles := make([]variables.Handle, 0, len(files))
	for _, file := range files {
		def := file.Definition
		h, err := l.engine.Register(def.Variable(file.Path), NewDefinitionResolver(file, l.expanderOpts...))
		if err != nil {
			for _, registered := range handles {
				registered.Dispose()
			}
			return fmt.Errorf("plugin: register %s from %s: %w", def.Name, file.Path, err)
		}
		handles = append(handles, h)
	}
	for _, old := range l.handles {
		old.Dispose()
	}
	l.handles = handles
	l.files = files
	l.logger.Printf("plugins: loaded %d variable definitions", len(files))
	return nil
}

// Files returns the currently registered definitions.
func (l *Loader) Files() []DefinitionFile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]DefinitionFile(nil), l.files...)
}

// Close unregisters every loaded definition.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range l.handles {
		h.Dispose()
	}
	l.handles = nil
	l.files = nil
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
