package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/kingrea/lattice-prompts/internal/builtins"
	"github.com/kingrea/lattice-prompts/internal/config"
	"github.com/kingrea/lattice-prompts/internal/logging"
	"github.com/kingrea/lattice-prompts/internal/metrics"
	"github.com/kingrea/lattice-prompts/internal/prompt"
	"github.com/kingrea/lattice-prompts/internal/variables"
	"github.com/kingrea/lattice-prompts/plugins"
)

// Runtime wires the engine, its built-ins, on-disk definitions and the
// ambient services for one project.
type Runtime struct {
	Config    *config.Config
	Logger    *logging.Logger
	Metrics   *metrics.Collector
	Engine    *variables.Engine
	Fragments *prompt.MemoryStore
	Loader    *plugins.Loader
	Expander  *prompt.Expander

	expanderOpts []prompt.Option
	builtins     []variables.Handle
}

// RuntimeOptions carries command-line overrides.
type RuntimeOptions struct {
	MetricsAddr string
	// Verbose mirrors log lines to this writer.
	Verbose io.Writer
	// LookupEnv overrides the environment seen by the env variable.
	LookupEnv func(string) (string, bool)
}

// Open prepares the .lattice directory of projectDir and loads everything the
// commands need.
func Open(projectDir string, opts RuntimeOptions) (*Runtime, error) {
	if err := config.InitLatticeDir(projectDir); err != nil {
		return nil, fmt.Errorf("init .lattice directory: %w", err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	if opts.MetricsAddr != "" {
		cfg.SetMetricsAddr(opts.MetricsAddr)
	}

	var logOpts []logging.Option
	if opts.Verbose != nil {
		logOpts = append(logOpts, logging.WithMirror(opts.Verbose))
	}
	logger, err := logging.New(cfg.ProjectDir, logOpts...)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Logger: logger, Metrics: metrics.NewCollector()}
	rt.Engine = variables.New(
		variables.WithLogger(logger),
		variables.WithObserver(rt.Metrics),
		variables.WithMaxDepth(cfg.MaxDepth()),
	)
	rt.expanderOpts = []prompt.Option{prompt.WithLogger(logger), prompt.WithConcurrency(cfg.Concurrency())}
	if cfg.BestEffort() {
		rt.expanderOpts = append(rt.expanderOpts, prompt.WithBestEffort())
	}
	rt.Expander = prompt.NewExpander(rt.Engine, rt.expanderOpts...)

	rt.Fragments, err = prompt.LoadFragmentDir(cfg.FragmentsDir())
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.builtins, err = builtins.Register(rt.Engine, builtins.Options{
		LookupEnv:       opts.LookupEnv,
		Fragments:       rt.Fragments,
		FragmentOptions: rt.expanderOpts,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Loader = plugins.NewLoader(rt.Engine,
		plugins.WithLoaderLogger(logger),
		plugins.WithExpanderOptions(rt.expanderOpts...),
	)
	if err := rt.Loader.Load(cfg.VariableDirs()...); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Watcher builds a watcher over the project's definition and fragment dirs.
func (rt *Runtime) Watcher(opts ...plugins.WatcherOption) *plugins.Watcher {
	base := []plugins.WatcherOption{
		plugins.WithWatchLogger(rt.Logger),
		plugins.WithFragments(rt.Config.FragmentsDir(), rt.Fragments),
	}
	return plugins.NewWatcher(rt.Loader, rt.Config.VariableDirs(), append(base, opts...)...)
}

// ServeMetrics exposes metrics in the background until ctx is done when a
// metrics address is configured.
func (rt *Runtime) ServeMetrics(ctx context.Context) {
	addr := rt.Config.MetricsAddr()
	if addr == "" {
		return
	}
	go func() {
		if err := rt.Metrics.Serve(ctx, addr, nil); err != nil {
			rt.Logger.Printf("metrics: %v", err)
		}
	}()
}

// Close unregisters everything and closes the log file.
func (rt *Runtime) Close() {
	if rt.Loader != nil {
		rt.Loader.Close()
	}
	for _, h := range rt.builtins {
		h.Dispose()
	}
	_ = rt.Logger.Close()
}
