package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueFunc computes a variable's text for an argument. Go definitions bind
// one through their func field.
type ValueFunc func(arg string) (string, error)

// DefinitionFile pairs a parsed variable definition with its on-disk source.
type DefinitionFile struct {
	Definition VariableDefinition
	Path       string
	// Func is bound for Go definitions that name a function.
	Func ValueFunc
}

// ParseDefinitionYAML decodes and validates a single variable definition payload.
func ParseDefinitionYAML(data []byte) (VariableDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return VariableDefinition{}, fmt.Errorf("plugin: definition payload is empty")
	}
	var def VariableDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return VariableDefinition{}, fmt.Errorf("plugin: decode definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return VariableDefinition{}, err
	}
	return def.Normalized(), nil
}

// LoadDefinitionFile reads a YAML file from disk and returns the parsed variable definition.
func LoadDefinitionFile(path string) (DefinitionFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return DefinitionFile{}, fmt.Errorf("plugin: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	def, err := ParseDefinitionYAML(data)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("plugin: %s: %w", path, err)
	}
	if def.Func != "" {
		return DefinitionFile{}, fmt.Errorf("plugin: %s: func is only supported in Go definitions", path)
	}
	return DefinitionFile{Definition: def, Path: filepath.Clean(path)}, nil
}

// LoadDefinitionDir scans a directory for *.yaml variables and returns the parsed definitions.
// Missing directories are treated as "no definitions" to simplify startup.
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		def, err := LoadDefinitionFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

func isGoFile(name string) bool {
	return filepath.Ext(strings.TrimSpace(name)) == ".go"
}
