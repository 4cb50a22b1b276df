// Package bootstrap materializes a server's config tree into its output
// directory, substituting placeholders in text files and copying everything
// else, while skipping files whose source has not changed since the last
// recorded build.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/mcbuild/internal/config"
	"github.com/schaermu/mcbuild/internal/lockfile"
	"github.com/schaermu/mcbuild/internal/template"
)

// EulaFileName is written when the EULA has to be accepted through a file
const EulaFileName = "eula.txt"

// Outcome is what happened to a single file
type Outcome int

const (
	Unchanged Outcome = iota
	Written
)

func (o Outcome) String() string {
	if o == Written {
		return "written"
	}
	return "unchanged"
}

// Options configures an Engine
type Options struct {
	OutputDir string
	Force     bool
	// Env backs the environment fallback of placeholder resolution;
	// nil means the process environment
	Env template.Env
	// Workers bounds parallel file processing; zero means GOMAXPROCS
	Workers int
}

// Engine bootstraps one server's config tree
type Engine struct {
	server   *config.Server
	opts     Options
	resolver *template.Resolver
	logger   *slog.Logger
}

// NewEngine creates a new bootstrap engine
func NewEngine(server *config.Server, opts Options, logger *slog.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		server:   server,
		opts:     opts,
		resolver: template.NewResolver(server, opts.Env),
		logger:   logger,
	}
}

// MapPath maps a path relative to the server root, whose first segment is
// the scan root ("config/plugins/x/y.yml"), to its destination in the output
// directory ("<output>/plugins/x/y.yml").
func (e *Engine) MapPath(rel string) (string, error) {
	key, err := StripRoot(rel)
	if err != nil {
		return "", err
	}
	return e.destination(key), nil
}

func (e *Engine) source(key string) string {
	return filepath.Join(e.server.ConfigDir(), filepath.FromSlash(key))
}

func (e *Engine) destination(key string) string {
	return filepath.Join(e.opts.OutputDir, filepath.FromSlash(key))
}

// BootstrapFiles bootstraps every file of the config tree against the
// records of old and returns the records of the new lockfile, sorted by path.
// The first failing file aborts the whole run.
func (e *Engine) BootstrapFiles(ctx context.Context, old *lockfile.Lockfile) ([]lockfile.FileRecord, error) {
	if err := os.MkdirAll(e.opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	keys, err := DiscoverFiles(e.server.ConfigDir())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to discover config files: %w", err)
		}
		e.logger.Info("no config directory, nothing to bootstrap", "dir", e.server.ConfigDir())
		keys = nil
	}

	e.logger.Info("bootstrapping config files", "count", len(keys), "force", e.opts.Force)

	cache := old.FileTimes()
	records := make([]lockfile.FileRecord, len(keys))
	var written atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			var cached *time.Time
			if t, ok := cache[key]; ok {
				cached = &t
			}

			rec, outcome, err := e.BootstrapFile(gctx, key, cached)
			if err != nil {
				return fmt.Errorf("bootstrapping %s: %w", e.source(key), err)
			}
			if outcome == Written {
				written.Add(1)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := e.writeEula(); err != nil {
		return nil, err
	}

	n := int(written.Load())
	e.logger.Info("bootstrapping complete", "written", n, "unchanged", len(keys)-n)
	return records, nil
}

// BootstrapFile processes one file, identified by its slash-separated path
// relative to the config root. cached is the source time recorded by the
// previous build, nil if there is none. The returned record always carries
// the current source time, whether the file was written or not.
func (e *Engine) BootstrapFile(ctx context.Context, key string, cached *time.Time) (lockfile.FileRecord, Outcome, error) {
	if err := ctx.Err(); err != nil {
		return lockfile.FileRecord{}, Unchanged, err
	}

	src := e.source(key)
	dst := e.destination(key)

	info, err := os.Stat(src)
	if err != nil {
		return lockfile.FileRecord{}, Unchanged, fmt.Errorf("failed to stat source: %w", err)
	}
	modTime := info.ModTime()

	outcome := Unchanged
	if e.opts.Force || cached == nil || modTime.After(*cached) {
		if err := e.strategyFor(key).apply(src, dst); err != nil {
			return lockfile.FileRecord{}, Unchanged, err
		}
		outcome = Written
	}

	if outcome == Written {
		e.logger.Info("file written", "path", key)
	} else {
		e.logger.Info("file unchanged", "path", key)
	}

	return lockfile.FileRecord{Path: key, Date: modTime}, outcome, nil
}

// BootstrapPath force-bootstraps the file at the absolute path abs. It
// reports false when abs lies outside the config tree.
func (e *Engine) BootstrapPath(ctx context.Context, abs string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	rel, err := filepath.Rel(e.server.ConfigDir(), abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return false, fmt.Errorf("bootstrapping %s: %w", abs, err)
	}
	if info.IsDir() {
		return false, nil
	}

	key := filepath.ToSlash(rel)
	if err := e.strategyFor(key).apply(abs, e.destination(key)); err != nil {
		return false, fmt.Errorf("bootstrapping %s: %w", abs, err)
	}
	e.logger.Info("file written", "path", key)
	return true, nil
}

// writeEula accepts the EULA through eula.txt when the launcher is asked to
// but the jar has no command line flag for it. The file is not tracked.
func (e *Engine) writeEula() error {
	if !e.server.Launcher.EulaArgs || e.server.Jar.Type.SupportsEulaArgs() {
		return nil
	}

	path := filepath.Join(e.opts.OutputDir, EulaFileName)
	e.logger.Info("writing eula.txt", "reason", "eula args unsupported", "jar", e.server.Jar.Type)
	if err := os.WriteFile(path, []byte("eula=true\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// fileStrategy writes one destination file from its source
type fileStrategy interface {
	apply(src, dst string) error
}

func (e *Engine) strategyFor(key string) fileStrategy {
	if Classify(key) == Templated {
		return templatedFile{engine: e, key: key}
	}
	return opaqueFile{}
}

type templatedFile struct {
	engine *Engine
	key    string
}

func (t templatedFile) apply(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, missing := template.Expand(string(data), t.engine.resolver)
	if len(missing) > 0 {
		t.engine.logger.Warn("unresolved placeholders replaced with empty string",
			"path", t.key, "keys", missing)
	}

	err = writeAtomic(dst, info.Mode().Perm(), func(w io.Writer) error {
		_, err := io.WriteString(w, out)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

type opaqueFile struct{}

func (opaqueFile) apply(src, dst string) error {
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}
