//go:build integration

package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/mcbuild/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// Harness builds the mcbuild binary once and runs it against a project
type Harness struct {
	t      *testing.T
	binary string
}

// NewHarness compiles the binary into a temp directory
func NewHarness(ctx context.Context, t *testing.T) *Harness {
	t.Helper()

	projectRoot := testutil.ProjectRoot(t)

	binary := filepath.Join(t.TempDir(), "mcbuild")
	cmd := exec.CommandContext(ctx, "go", "build", "-o", binary, "./cmd/mcbuild")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: t, prefix: "[build] "}
	if err := cmd.Run(); err != nil {
		t.Fatalf("go build: %v", err)
	}

	return &Harness{t: t, binary: binary}
}

// Result is one invocation of the binary
type Result struct {
	ExitCode int
	Stdout   string
	Records  []map[string]any
}

// Messages returns the msg field of every record logged at level
func (r Result) Messages(level string) []string {
	var out []string
	for _, rec := range r.Records {
		if rec["level"] == level {
			out = append(out, fmt.Sprint(rec["msg"]))
		}
	}
	return out
}

// Count returns how many records carry msg
func (r Result) Count(msg string) int {
	n := 0
	for _, rec := range r.Records {
		if rec["msg"] == msg {
			n++
		}
	}
	return n
}

// Run executes mcbuild with JSON logging at debug level
func (h *Harness) Run(ctx context.Context, args ...string) Result {
	h.t.Helper()

	args = append([]string{"--log-format", "json", "--log-level", "debug"}, args...)
	cmd := exec.CommandContext(ctx, h.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := Result{}
	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			h.t.Fatalf("run mcbuild: %v", err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	res.Stdout = stdout.String()

	scanner := bufio.NewScanner(&stderr)
	for scanner.Scan() {
		line := scanner.Text()
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// cobra prints plain errors next to the log records
			h.t.Logf("[mcbuild] %s", line)
			continue
		}
		res.Records = append(res.Records, rec)
	}

	return res
}

// MustRun runs mcbuild and fails the test on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, args ...string) Result {
	h.t.Helper()
	res := h.Run(ctx, args...)
	if res.ExitCode != 0 {
		h.t.Fatalf("mcbuild %s exited with %d\nerrors: %v",
			strings.Join(args, " "), res.ExitCode, res.Messages("ERROR"))
	}
	return res
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
