package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/mcbuild/internal/bootstrap"
	"github.com/schaermu/mcbuild/internal/config"
	"github.com/schaermu/mcbuild/internal/lockfile"
	"github.com/schaermu/mcbuild/internal/sources"
	"github.com/schaermu/mcbuild/internal/template"
)

// Addon kinds recorded in the lockfile
const (
	KindPlugin = "plugin"
	KindMod    = "mod"
)

// defaultDownloadConcurrency bounds parallel source requests
const defaultDownloadConcurrency = 4

type bootstrapStage struct {
	env     template.Env
	workers int
	logger  *slog.Logger
}

func (s *bootstrapStage) Name() string { return StageBootstrap }

func (s *bootstrapStage) Run(ctx context.Context, st State) (State, error) {
	engine := bootstrap.NewEngine(st.Server, bootstrap.Options{
		OutputDir: st.OutputDir,
		Force:     st.Force,
		Env:       s.env,
		Workers:   s.workers,
	}, s.logger)

	records, err := engine.BootstrapFiles(ctx, st.OldLock)
	if err != nil {
		return st, err
	}

	st.NewLock = st.NewLock.WithFiles(records)
	return st, nil
}

// Carry keeps the previous file records so a skipped bootstrap does not
// invalidate the cache of the next run
func (s *bootstrapStage) Carry(st State) State {
	st.NewLock = st.NewLock.WithFiles(st.OldLock.Files)
	return st
}

type addonStage struct {
	name     string
	kind     string
	dir      string
	registry *sources.Registry
	workers  int
	logger   *slog.Logger
}

func newAddonStage(name, kind, dir string, registry *sources.Registry, workers int, logger *slog.Logger) *addonStage {
	if workers <= 0 {
		workers = defaultDownloadConcurrency
	}
	return &addonStage{
		name:     name,
		kind:     kind,
		dir:      dir,
		registry: registry,
		workers:  workers,
		logger:   logger,
	}
}

func (s *addonStage) Name() string { return s.name }

func (s *addonStage) items(srv *config.Server) []config.Downloadable {
	if s.kind == KindMod {
		return srv.Mods
	}
	return srv.Plugins
}

func (s *addonStage) Run(ctx context.Context, st State) (State, error) {
	items := s.items(st.Server)
	dir := filepath.Join(st.OutputDir, s.dir)

	records := make([]lockfile.AddonRecord, len(items))
	err := sources.ForEach(ctx, s.workers, len(items), func(ctx context.Context, i int) error {
		rec, err := s.resolve(ctx, st, dir, items[i])
		if err != nil {
			return fmt.Errorf("%s %s: %w", s.kind, items[i].Identifier(), err)
		}
		records[i] = rec
		return nil
	})
	if err != nil {
		return st, err
	}

	if err := s.prune(st.OldLock, records, dir); err != nil {
		return st, err
	}

	s.logger.Info("addons resolved", "kind", s.kind, "count", len(records))
	st.NewLock = st.NewLock.WithAddons(s.kind, records)
	return st, nil
}

func (s *addonStage) Carry(st State) State {
	st.NewLock = st.NewLock.WithAddons(s.kind, st.OldLock.AddonsOfKind(s.kind))
	return st
}

// resolve brings one artifact up to date and returns its record
func (s *addonStage) resolve(ctx context.Context, st State, dir string, d config.Downloadable) (lockfile.AddonRecord, error) {
	src, err := s.registry.Get(d.Type)
	if err != nil {
		return lockfile.AddonRecord{}, err
	}
	id := src.ResolveID(d.Identifier())

	version, err := src.FetchLatestVersion(ctx, id)
	if err != nil {
		return lockfile.AddonRecord{}, err
	}

	prev, hadPrev := st.OldLock.Addon(s.kind, src.Name(), id)
	if hadPrev && !st.Force && prev.Version == version && fileExists(filepath.Join(dir, prev.Filename)) {
		s.logger.Debug("addon unchanged", "kind", s.kind, "source", src.Name(), "id", id, "version", version)
		return prev, nil
	}

	md, err := src.FetchMetadata(ctx, id)
	if err != nil {
		return lockfile.AddonRecord{}, err
	}

	filename := addonFilename(d, md, version)
	dest := filepath.Join(dir, filename)
	if err := sources.Download(ctx, st.HTTP, src.DownloadURL(id), dest); err != nil {
		return lockfile.AddonRecord{}, err
	}
	s.logger.Info("addon downloaded",
		"kind", s.kind,
		"name", md.Name,
		"source", src.Name(),
		"version", version,
		"file", filename)

	if hadPrev && prev.Filename != filename {
		if err := removeIfExists(filepath.Join(dir, prev.Filename)); err != nil {
			return lockfile.AddonRecord{}, err
		}
	}

	return lockfile.AddonRecord{
		Kind:     s.kind,
		Source:   src.Name(),
		ID:       id,
		Version:  version,
		Filename: filename,
	}, nil
}

// prune deletes files of addons that were recorded last run but are no
// longer configured
func (s *addonStage) prune(old *lockfile.Lockfile, current []lockfile.AddonRecord, dir string) error {
	keep := make(map[string]bool, len(current))
	for _, r := range current {
		keep[r.Filename] = true
	}

	for _, r := range old.AddonsOfKind(s.kind) {
		if keep[r.Filename] || r.Filename == "" {
			continue
		}
		s.logger.Info("removing addon", "kind", s.kind, "file", r.Filename)
		if err := removeIfExists(filepath.Join(dir, r.Filename)); err != nil {
			return err
		}
	}
	return nil
}

// addonFilename names the downloaded file: an explicit filename wins, a
// name that already is a jar is kept, anything else becomes name-version.jar
func addonFilename(d config.Downloadable, md sources.Metadata, version string) string {
	if d.Filename != "" {
		return d.Filename
	}
	if strings.HasSuffix(md.Name, ".jar") {
		return sanitizeFilename(md.Name)
	}
	return sanitizeFilename(md.Name) + "-" + sanitizeFilename(version) + ".jar"
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_', r == '+':
			return r
		}
		return '_'
	}, s)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
