package hotreload

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FSSource produces Events from fsnotify for a whole directory tree.
// Directories created after startup are added as they appear.
type FSSource struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// WatchTree starts watching root and every directory below it
func WatchTree(root string, logger *slog.Logger) (*FSSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &FSSource{watcher: w, logger: logger}
	if err := s.addTree(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	return s, nil
}

func (s *FSSource) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", p, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := s.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// Events translates fsnotify events until ctx is done or the source is
// closed. The returned channel is closed when translation stops.
func (s *FSSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-s.watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("watcher error", "error", err)
			case raw, ok := <-s.watcher.Events:
				if !ok {
					return
				}
				ev := translate(raw)
				if ev.Op == Create {
					if fi, err := os.Stat(ev.Path); err == nil && fi.IsDir() {
						if err := s.addTree(ev.Path); err != nil {
							s.logger.Warn("failed to watch new directory", "path", ev.Path, "error", err)
						}
						continue
					}
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Close stops watching
func (s *FSSource) Close() error {
	return s.watcher.Close()
}

// translate picks the most significant operation of a combined event
func translate(ev fsnotify.Event) Event {
	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = Create
	case ev.Op&fsnotify.Write != 0:
		op = Write
	case ev.Op&fsnotify.Remove != 0:
		op = Remove
	case ev.Op&fsnotify.Rename != 0:
		op = Rename
	default:
		op = Chmod
	}
	return Event{Op: op, Path: ev.Name}
}
