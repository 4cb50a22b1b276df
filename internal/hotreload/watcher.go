package hotreload

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/schaermu/mcbuild/internal/config"
	"github.com/schaermu/mcbuild/internal/procctl"
)

// Op is the kind of filesystem change an Event reports
type Op uint8

const (
	Create Op = iota + 1
	Write
	Remove
	Rename
	Chmod
)

func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Write:
		return "write"
	case Remove:
		return "remove"
	case Rename:
		return "rename"
	case Chmod:
		return "chmod"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Event is a single filesystem change
type Event struct {
	Op   Op
	Path string
}

// PrepareFunc runs before an action for every changed path folded into it,
// typically to re-bootstrap the file into the output directory
type PrepareFunc func(ctx context.Context, path string) error

// Options configures a Watcher
type Options struct {
	// Root is the server root that rule patterns are relative to
	Root string
	// Ignore lists directories whose changes are never dispatched, such as
	// the build output inside the server root
	Ignore  []string
	Prepare PrepareFunc
}

// Watcher dispatches matched file events to a Controller. Dispatch only
// queues work; actions run one at a time on a background worker.
type Watcher struct {
	rules   []Rule
	ctrl    procctl.Controller
	logger  *slog.Logger
	root    string
	ignore  []string
	prepare PrepareFunc
	queue   *actionQueue
}

// NewWatcher creates a new watcher
func NewWatcher(rules []Rule, ctrl procctl.Controller, logger *slog.Logger, opts Options) *Watcher {
	ignore := make([]string, len(opts.Ignore))
	for i, dir := range opts.Ignore {
		ignore[i] = absPath(dir)
	}
	return &Watcher{
		rules:   rules,
		ctrl:    ctrl,
		logger:  logger,
		root:    absPath(opts.Root),
		ignore:  ignore,
		prepare: opts.Prepare,
		queue:   newActionQueue(),
	}
}

// Match returns the first rule matching path, which may be absolute or
// relative to the server root
func (w *Watcher) Match(p string) (Rule, bool) {
	rel, ok := relativeTo(w.root, w.abs(p))
	if !ok {
		return Rule{}, false
	}
	return Match(w.rules, rel)
}

func (w *Watcher) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(w.root, p)
}

// absPath resolves p against the working directory, keeping p when that
// fails
func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// Dispatch queues the action for ev if it is a create or write of a
// matching path. It reports whether anything was queued.
func (w *Watcher) Dispatch(ev Event) bool {
	if ev.Op != Create && ev.Op != Write {
		return false
	}

	for _, dir := range w.ignore {
		if _, inside := relativeTo(dir, w.abs(ev.Path)); inside {
			return false
		}
	}

	rule, ok := w.Match(ev.Path)
	if !ok {
		w.logger.Debug("no rule for changed file", "path", ev.Path)
		return false
	}

	w.logger.Info("file changed", "path", ev.Path, "op", ev.Op, "pattern", rule.Pattern, "action", rule.Action)
	w.queue.push(rule.Action, ev.Path)
	return true
}

// Run dispatches events until ctx is cancelled or events is closed. When
// events closes, queued actions are completed before Run returns.
func (w *Watcher) Run(ctx context.Context, events <-chan Event) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.queue.serve(ctx, stop, w.execute)
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				close(stop)
				<-done
				return nil
			}
			w.Dispatch(ev)
		}
	}
}

func (w *Watcher) execute(ctx context.Context, j *job) {
	if w.prepare != nil {
		for _, p := range j.paths {
			if err := w.prepare(ctx, p); err != nil {
				w.logger.Error("failed to prepare changed file", "path", p, "error", err)
			}
		}
	}

	w.logger.Info("executing action", "action", j.action, "files", len(j.paths))
	if err := w.apply(ctx, j.action); err != nil {
		w.logger.Error("action failed", "action", j.action, "error", err)
	}
}

func (w *Watcher) apply(ctx context.Context, a config.Action) error {
	switch a.Kind {
	case config.ActionReload:
		return w.ctrl.Reload(ctx)
	case config.ActionRestart:
		return w.ctrl.Restart(ctx)
	case config.ActionReloadPlugin:
		return w.ctrl.ReloadPlugin(ctx, pluginName(a.Arg))
	case config.ActionRunCommand:
		return w.ctrl.RunCommand(ctx, a.Arg)
	}
	return fmt.Errorf("unknown action %q", a.Kind)
}

// pluginName accepts either a plugin name or a jar path
func pluginName(arg string) string {
	base := path.Base(arg)
	if ext := path.Ext(base); ext == ".jar" {
		return base[:len(base)-len(ext)]
	}
	return base
}
