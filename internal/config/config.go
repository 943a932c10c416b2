// internal/config/config.go
//
// This package handles configuration and the .lattice directory structure.
// Every project that renders prompts gets a .lattice/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// LatticeDir is the name of the directory we create in each project
	LatticeDir = ".lattice"

	defaultMaxDepth    = 64
	defaultConcurrency = 8
)

var (
	defaultVariableDirs = []string{filepath.Join(LatticeDir, "variables")}
	defaultFragmentsDir = filepath.Join(LatticeDir, "prompts")
)

const defaultProjectConfigYAML = `# lattice-prompts project configuration
version: 1

variables:
  # Directories scanned for *.yaml and *.go variable definitions.
  dirs:
    - .lattice/variables
  # Prompt fragments served as {{prompt:<file name>}}.
  fragments_dir: .lattice/prompts
  # Maximum nesting of dependent variables. 0 disables the limit.
  max_depth: 64
  # Leave failing placeholders in place instead of aborting a render.
  best_effort: false
  # Templates expanded in parallel when render is given several files.
  concurrency: 8
  # Serve Prometheus metrics on this address when set, e.g. 127.0.0.1:9464.
  metrics_addr: ""
`

// VariablesConfig captures how variables are discovered and resolved.
type VariablesConfig struct {
	Dirs         []string `yaml:"dirs"`
	FragmentsDir string   `yaml:"fragments_dir"`
	MaxDepth     *int     `yaml:"max_depth,omitempty"`
	BestEffort   bool     `yaml:"best_effort"`
	Concurrency  int      `yaml:"concurrency"`
	MetricsAddr  string   `yaml:"metrics_addr"`
}

// ProjectConfig models .lattice/config.yaml.
type ProjectConfig struct {
	Version   int             `yaml:"version"`
	Variables VariablesConfig `yaml:"variables"`
}

// Config holds the runtime configuration for a project.
type Config struct {
	// ProjectDir is the directory the command was run against
	ProjectDir string

	// LatticeProjectDir is ProjectDir/.lattice
	LatticeProjectDir string

	Project ProjectConfig
}

// InitLatticeDir creates the .lattice directory structure in the given project directory.
//
// Structure created:
// .lattice/
// ├── config.yaml
// ├── logs/         <- lattice.log
// ├── variables/    <- *.yaml and *.go variable definitions
// └── prompts/      <- prompt fragments
func InitLatticeDir(projectDir string) error {
	latticeDir := filepath.Join(projectDir, LatticeDir)

	dirs := []string{
		filepath.Join(latticeDir, "logs"),
		filepath.Join(latticeDir, "variables"),
		filepath.Join(latticeDir, "prompts"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(latticeDir, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
// A missing config.yaml yields the defaults.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", projectDir, err)
	}
	cfg := &Config{
		ProjectDir:        abs,
		LatticeProjectDir: filepath.Join(abs, LatticeDir),
		Project:           defaultProjectConfig(),
	}
	cfg.Project.normalize(abs)

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.LatticeProjectDir, "logs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.LatticeProjectDir, "config.yaml")
}

// VariableDirs returns the absolute directories scanned for definitions.
func (c *Config) VariableDirs() []string {
	return append([]string(nil), c.Project.Variables.Dirs...)
}

// FragmentsDir returns the absolute prompt fragment directory.
func (c *Config) FragmentsDir() string {
	return c.Project.Variables.FragmentsDir
}

// MaxDepth returns the dependency depth limit; 0 means unlimited.
func (c *Config) MaxDepth() int {
	if c.Project.Variables.MaxDepth == nil {
		return defaultMaxDepth
	}
	return *c.Project.Variables.MaxDepth
}

// BestEffort reports whether renders keep going past resolver errors.
func (c *Config) BestEffort() bool {
	return c.Project.Variables.BestEffort
}

// Concurrency returns how many placeholders resolve in parallel.
func (c *Config) Concurrency() int {
	return c.Project.Variables.Concurrency
}

// MetricsAddr returns the metrics listen address, empty when disabled.
func (c *Config) MetricsAddr() string {
	return c.Project.Variables.MetricsAddr
}

// SetMetricsAddr overrides the metrics address for this run without
// persisting it.
func (c *Config) SetMetricsAddr(addr string) {
	c.Project.Variables.MetricsAddr = strings.TrimSpace(addr)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	depth := defaultMaxDepth
	return ProjectConfig{
		Version: 1,
		Variables: VariablesConfig{
			Dirs:         append([]string(nil), defaultVariableDirs...),
			FragmentsDir: defaultFragmentsDir,
			MaxDepth:     &depth,
			Concurrency:  defaultConcurrency,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if len(pc.Variables.Dirs) == 0 {
		pc.Variables.Dirs = append([]string(nil), defaultVariableDirs...)
	}
	if strings.TrimSpace(pc.Variables.FragmentsDir) == "" {
		pc.Variables.FragmentsDir = defaultFragmentsDir
	}
	if pc.Variables.Concurrency == 0 {
		pc.Variables.Concurrency = defaultConcurrency
	}
}

func (pc *ProjectConfig) normalize(base string) {
	dirs := make([]string, 0, len(pc.Variables.Dirs))
	for _, dir := range pc.Variables.Dirs {
		resolved := resolvePath(base, dir)
		if resolved == "" || contains(dirs, resolved) {
			continue
		}
		dirs = append(dirs, resolved)
	}
	pc.Variables.Dirs = dirs
	pc.Variables.FragmentsDir = resolvePath(base, pc.Variables.FragmentsDir)
	pc.Variables.MetricsAddr = strings.TrimSpace(pc.Variables.MetricsAddr)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if len(pc.Variables.Dirs) == 0 {
		return fmt.Errorf("variables.dirs must list at least one directory")
	}
	if pc.Variables.MaxDepth != nil && *pc.Variables.MaxDepth < 0 {
		return fmt.Errorf("variables.max_depth must be >= 0")
	}
	if pc.Variables.Concurrency < 0 {
		return fmt.Errorf("variables.concurrency must be >= 0")
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
