// Package procctl carries hot-reload actions to a running game server.
package procctl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// Controller executes actions against the live server process
type Controller interface {
	// Reload reloads the whole server
	Reload(ctx context.Context) error
	// Restart restarts the server process
	Restart(ctx context.Context) error
	// ReloadPlugin reloads a single plugin
	ReloadPlugin(ctx context.Context, name string) error
	// RunCommand sends a console command
	RunCommand(ctx context.Context, command string) error
}

// runFunc runs an external command and returns its combined output
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Systemd controls a server running as a systemd user unit whose stdin is
// a console FIFO
type Systemd struct {
	unit    string
	console string
	run     runFunc
}

// NewSystemd creates a controller for unit, writing console commands to the
// FIFO (or file) at console
func NewSystemd(unit, console string) *Systemd {
	return &Systemd{unit: unit, console: console, run: execRun}
}

// Restart restarts the unit (harder than try-restart)
func (s *Systemd) Restart(ctx context.Context) error {
	if s.unit == "" {
		return fmt.Errorf("restart: no systemd unit configured")
	}
	output, err := s.run(ctx, "systemctl", "--user", "restart", s.unit)
	if err != nil {
		return fmt.Errorf("systemctl restart %s failed: %w: %s", s.unit, err, string(output))
	}
	return nil
}

// Status returns the activity state of the unit
func (s *Systemd) Status(ctx context.Context) string {
	output, _ := s.run(ctx, "systemctl", "--user", "is-active", s.unit)
	// is-active returns non-zero for inactive units, but that's not an error
	return strings.TrimSpace(string(output))
}

// Reload implements Controller
func (s *Systemd) Reload(ctx context.Context) error {
	return s.RunCommand(ctx, "reload confirm")
}

// ReloadPlugin implements Controller
func (s *Systemd) ReloadPlugin(ctx context.Context, name string) error {
	return s.RunCommand(ctx, "plugman reload "+name)
}

// RunCommand writes command as one line to the server console. Opening
// does not block: a FIFO without a reader fails instead of hanging.
func (s *Systemd) RunCommand(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.console == "" {
		return fmt.Errorf("run %q: no console configured", command)
	}

	f, err := os.OpenFile(s.console, os.O_WRONLY|os.O_APPEND|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("failed to open console %s: %w", s.console, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.WriteString(strings.TrimRight(command, "\n") + "\n"); err != nil {
		return fmt.Errorf("failed to write to console %s: %w", s.console, err)
	}
	return nil
}

// Logging only logs actions; it is used when no process is attached
type Logging struct {
	logger *slog.Logger
}

// NewLogging creates a controller that logs every action
func NewLogging(logger *slog.Logger) *Logging {
	return &Logging{logger: logger}
}

// Reload implements Controller
func (l *Logging) Reload(_ context.Context) error {
	l.logger.Info("would reload server")
	return nil
}

// Restart implements Controller
func (l *Logging) Restart(_ context.Context) error {
	l.logger.Info("would restart server")
	return nil
}

// ReloadPlugin implements Controller
func (l *Logging) ReloadPlugin(_ context.Context, name string) error {
	l.logger.Info("would reload plugin", "plugin", name)
	return nil
}

// RunCommand implements Controller
func (l *Logging) RunCommand(_ context.Context, command string) error {
	l.logger.Info("would run console command", "command", command)
	return nil
}
