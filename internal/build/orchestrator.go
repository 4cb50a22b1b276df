// Package build runs the named, skippable stages that turn a server
// description into its output directory.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/schaermu/mcbuild/internal/config"
	"github.com/schaermu/mcbuild/internal/lockfile"
	"github.com/schaermu/mcbuild/internal/sources"
	"github.com/schaermu/mcbuild/internal/template"
)

// Stage is one named step of a build
type Stage interface {
	Name() string
	// Run consumes the previous state and returns the next one
	Run(ctx context.Context, st State) (State, error)
	// Carry returns the next state when the stage is skipped
	Carry(st State) State
}

// Options configures a build run
type Options struct {
	// OutputDir defaults to the server's DefaultOutputDir
	OutputDir string
	Skip      []string
	Force     bool
	// Env backs the environment fallback of templates; nil means the
	// process environment
	Env template.Env
	// Concurrency bounds parallel file and download work; zero picks a default
	Concurrency int
}

// Orchestrator owns one build invocation
type Orchestrator struct {
	server  *config.Server
	network *config.Network
	http    *http.Client
	sources *sources.Registry
	logger  *slog.Logger
	opts    Options
	stages  []Stage
}

// NewOrchestrator creates an orchestrator with the default stages:
// bootstrap, plugins and mods
func NewOrchestrator(server *config.Server, network *config.Network, httpClient *http.Client, registry *sources.Registry, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.OutputDir == "" {
		opts.OutputDir = server.DefaultOutputDir()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if registry == nil {
		registry = sources.DefaultRegistry(httpClient)
	}

	o := &Orchestrator{
		server:  server,
		network: network,
		http:    httpClient,
		sources: registry,
		logger:  logger,
		opts:    opts,
	}
	o.stages = []Stage{
		&bootstrapStage{env: opts.Env, workers: opts.Concurrency, logger: logger},
		newAddonStage(StagePlugins, KindPlugin, "plugins", registry, opts.Concurrency, logger),
		newAddonStage(StageMods, KindMod, "mods", registry, opts.Concurrency, logger),
	}
	return o
}

// WithStages replaces the stages run by o
func (o *Orchestrator) WithStages(stages ...Stage) *Orchestrator {
	o.stages = stages
	return o
}

// Stage names accepted by --skip
const (
	StageBootstrap = "bootstrap"
	StagePlugins   = "plugins"
	StageMods      = "mods"
)

// StageNames returns the names of the configured stages in run order
func (o *Orchestrator) StageNames() []string {
	names := make([]string, 0, len(o.stages))
	for _, s := range o.stages {
		names = append(names, s.Name())
	}
	return names
}

// Run executes all stages in order, failing fast, and persists the new
// lockfile once every stage has succeeded
func (o *Orchestrator) Run(ctx context.Context) (*State, error) {
	logger := o.logger.With("run", uuid.NewString())

	skip := make(map[string]bool, len(o.opts.Skip))
	known := make(map[string]bool, len(o.stages))
	for _, s := range o.stages {
		known[s.Name()] = true
	}
	for _, name := range o.opts.Skip {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !known[name] {
			logger.Warn("ignoring unknown stage in skip list", "stage", name)
			continue
		}
		skip[name] = true
	}

	logger.Info("starting build",
		"server", o.server.Name,
		"output", o.opts.OutputDir,
		"force", o.opts.Force)
	if o.network != nil {
		logger.Info("server is part of a network", "network", o.network.Name)
	}

	if err := os.MkdirAll(o.opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", o.opts.OutputDir, err)
	}

	oldLock, err := lockfile.Load(o.opts.OutputDir)
	if err != nil {
		return nil, err
	}

	st := State{
		Server:    o.server,
		Network:   o.network,
		HTTP:      o.http,
		Force:     o.opts.Force,
		Skip:      skip,
		OutputDir: o.opts.OutputDir,
		OldLock:   oldLock,
		NewLock:   lockfile.New(),
	}

	for _, stage := range o.stages {
		if st.Skipped(stage.Name()) {
			logger.Info("skipping stage", "stage", stage.Name())
			st = stage.Carry(st)
			continue
		}

		logger.Info("running stage", "stage", stage.Name())
		next, err := stage.Run(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		st = next
	}

	if err := lockfile.Save(st.OutputDir, st.NewLock); err != nil {
		return nil, err
	}

	logger.Info("build completed successfully")
	return &st, nil
}
