package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/schaermu/mcbuild/internal/bootstrap"
	"github.com/schaermu/mcbuild/internal/build"
	"github.com/schaermu/mcbuild/internal/config"
	"github.com/schaermu/mcbuild/internal/hotreload"
	"github.com/schaermu/mcbuild/internal/logging"
	"github.com/schaermu/mcbuild/internal/procctl"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Build flags
	outputDir string
	skip      []string
	force     bool

	// Dev flags
	hotReloadFile string
	unit          string
	console       string
	noBuild       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mcbuild",
	Short: "Build Minecraft server deployments from a declarative description",
	Long: `mcbuild turns a server root (server.toml plus a config/ tree) into a
ready-to-run server directory.

It renders templated config files, copies everything else, accepts the EULA
when asked to and downloads the declared plugins and mods. Builds are
incremental: a lockfile in the output directory records what was produced.`,
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the server into the output directory",
	Long: `Build runs the bootstrap, plugins and mods stages in order and stops at the
first failure. Unchanged files and already downloaded addons are left alone
unless --force is given.`,
	RunE: runBuild,
}

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Watch the server root and hot-reload the running server",
	Long: `Dev watches the server root for changes. Changed config files are
bootstrapped into the output directory again, and the first matching rule of
the hot-reload file decides whether the running server is reloaded,
restarted, has a plugin reloaded or receives a console command.`,
	RunE: runDev,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcbuild %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.ServerFileName, "server file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json, pretty)")

	addBuildFlags(buildCmd.Flags())
	addBuildFlags(devCmd.Flags())

	devCmd.Flags().StringVar(&hotReloadFile, "hotreload", "", "hot-reload rule file (default is hotreload.yml in the server root)")
	devCmd.Flags().StringVar(&unit, "unit", "", "systemd user unit running the server")
	devCmd.Flags().StringVar(&console, "console", "", "console FIFO of the running server")
	devCmd.Flags().BoolVar(&noBuild, "no-build", false, "do not build before watching")

	// Add commands
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(versionCmd)
}

func addBuildFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&outputDir, "output", "o", "", "output directory (default is server/ in the server root)")
	fs.StringSliceVar(&skip, "skip", nil, "stages to skip (bootstrap, plugins, mods)")
	fs.BoolVar(&force, "force", false, "rewrite files and download addons even when unchanged")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger, err := setupLogger()
	if err != nil {
		return err
	}

	srv, network, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := runOrchestrator(ctx, srv, network, logger); err != nil {
		logger.Error("build failed", "error", err)
		return err
	}
	return nil
}

func runOrchestrator(ctx context.Context, srv *config.Server, network *config.Network, logger *slog.Logger) error {
	orch := build.NewOrchestrator(srv, network, newHTTPClient(), nil, logger, build.Options{
		OutputDir: outputDir,
		Skip:      skip,
		Force:     force,
	})

	st, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("build finished",
		"output", st.OutputDir,
		"files", len(st.NewLock.Files),
		"addons", len(st.NewLock.Addons))
	return nil
}

func runDev(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger, err := setupLogger()
	if err != nil {
		return err
	}

	srv, network, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path := hotReloadFile
	if path == "" {
		path = filepath.Join(srv.Path, config.HotReloadFileName)
	}
	hr, err := config.LoadHotReload(path)
	if err != nil {
		return fmt.Errorf("failed to load hot-reload rules: %w", err)
	}
	rules, err := hotreload.CompileRules(hr.Files)
	if err != nil {
		return fmt.Errorf("failed to compile hot-reload rules: %w", err)
	}

	if !noBuild {
		if err := runOrchestrator(ctx, srv, network, logger); err != nil {
			logger.Error("build failed", "error", err)
			return err
		}
	}

	ctrl := newController(ctx, hr.Controller, logger)

	out := outputDir
	if out == "" {
		out = srv.DefaultOutputDir()
	}
	if out, err = filepath.Abs(out); err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}
	engine := bootstrap.NewEngine(srv, bootstrap.Options{OutputDir: out}, logger)
	watcher := hotreload.NewWatcher(rules, ctrl, logger, hotreload.Options{
		Root:   srv.Path,
		Ignore: []string{out},
		Prepare: func(ctx context.Context, p string) error {
			_, err := engine.BootstrapPath(ctx, p)
			return err
		},
	})

	src, err := hotreload.WatchTree(srv.Path, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = src.Close()
	}()

	logger.Info("watching for changes", "root", srv.Path, "rules", len(rules))
	if err := watcher.Run(ctx, src.Events(ctx)); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("stopped watching")
	return nil
}

// newController prefers the command line over the hot-reload file and
// falls back to logging actions when no server is attached
func newController(ctx context.Context, cfg config.ControllerConfig, logger *slog.Logger) procctl.Controller {
	if unit != "" {
		cfg.Unit = unit
	}
	if console != "" {
		cfg.Console = console
	}
	if cfg.Unit == "" && cfg.Console == "" {
		logger.Warn("no unit or console configured, actions are only logged")
		return procctl.NewLogging(logger)
	}

	ctrl := procctl.NewSystemd(cfg.Unit, cfg.Console)
	if cfg.Unit != "" {
		logger.Info("controlling server", "unit", cfg.Unit, "status", ctrl.Status(ctx), "console", cfg.Console)
	}
	return ctrl
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Minute}
}

func setupLogger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Format(logFormat), os.Stderr, level)
}

func loadConfig(logger *slog.Logger) (*config.Server, *config.Network, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.ServerFileName
	}

	logger.Info("loading configuration", "path", configPath)

	srv, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	network, err := config.LoadNetwork(srv.Path)
	if err != nil {
		return nil, nil, err
	}

	logger.Debug("configuration loaded",
		"server", srv.Name,
		"mc_version", srv.MCVersion,
		"jar", srv.Jar.Type,
		"plugins", len(srv.Plugins),
		"mods", len(srv.Mods),
		"root", srv.Path)

	return srv, network, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
