package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/mcbuild/internal/config"
	"github.com/schaermu/mcbuild/internal/lockfile"
	"github.com/schaermu/mcbuild/internal/template"
	"github.com/schaermu/mcbuild/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupServer creates a server root with the given config tree and returns
// the server and its output directory
func setupServer(t *testing.T, files map[string]string) (*config.Server, string) {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, filepath.Join(root, "config"), files)

	srv := &config.Server{
		Name:      "Foo",
		MCVersion: "1.20.4",
		Jar:       config.JarConfig{Type: config.JarPaper},
		Variables: map[string]string{"MOTD": "hi"},
		Path:      root,
	}
	return srv, filepath.Join(root, "server")
}

func newEngine(srv *config.Server, out string, force bool) *Engine {
	return NewEngine(srv, Options{
		OutputDir: out,
		Force:     force,
		Env:       template.MapEnv{},
	}, testLogger())
}

func TestMapPath(t *testing.T) {
	srv, out := setupServer(t, nil)
	e := newEngine(srv, out, false)

	tests := []struct {
		rel  string
		want string
	}{
		{"config/server.properties", filepath.Join(out, "server.properties")},
		{"config/plugins/x/y.yml", filepath.Join(out, "plugins", "x", "y.yml")},
		{"config/a/b/c/d.txt", filepath.Join(out, "a", "b", "c", "d.txt")},
	}

	for _, tt := range tests {
		got, err := e.MapPath(tt.rel)
		if err != nil {
			t.Fatalf("MapPath(%q): %v", tt.rel, err)
		}
		if got != tt.want {
			t.Errorf("MapPath(%q) = %s, want %s", tt.rel, got, tt.want)
		}
	}
}

func TestBootstrapFiles_WritesTree(t *testing.T) {
	srv, out := setupServer(t, map[string]string{
		"server.properties":     "motd=${MOTD}\nname=${SERVER_NAME}\n",
		"plugins/x/y.yml":       "version: ${mcver}\n",
		"plugins/Cool/data.bin": "${SERVER_NAME}",
	})

	records, err := newEngine(srv, out, false).BootstrapFiles(context.Background(), lockfile.New())
	if err != nil {
		t.Fatalf("BootstrapFiles: %v", err)
	}

	got := testutil.SnapshotTree(t, out)
	want := map[string]string{
		"server.properties":     "motd=hi\nname=Foo\n",
		"plugins/x/y.yml":       "version: 1.20.4\n",
		"plugins/Cool/data.bin": "${SERVER_NAME}",
	}
	if len(got) != len(want) {
		t.Fatalf("output tree = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	paths := []string{records[0].Path, records[1].Path, records[2].Path}
	wantPaths := []string{"plugins/Cool/data.bin", "plugins/x/y.yml", "server.properties"}
	for i := range wantPaths {
		if paths[i] != wantPaths[i] {
			t.Errorf("record %d path = %s, want %s", i, paths[i], wantPaths[i])
		}
	}
}

func TestBootstrapFiles_Idempotent(t *testing.T) {
	srv, out := setupServer(t, map[string]string{
		"server.properties": "name=${SERVER_NAME}\n",
		"plugins/a.jar":     "binary",
	})

	var logs bytes.Buffer
	// Default CLI level: unchanged files must still be reported
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	e := NewEngine(srv, Options{OutputDir: out, Env: template.MapEnv{}}, logger)

	first, err := e.BootstrapFiles(context.Background(), lockfile.New())
	if err != nil {
		t.Fatal(err)
	}
	before := testutil.SnapshotTree(t, out)

	// Tamper with an output file: an unchanged source must not rewrite it
	testutil.WriteTree(t, out, map[string]string{"plugins/a.jar": "tampered"})
	before["plugins/a.jar"] = "tampered"

	logs.Reset()
	second, err := e.BootstrapFiles(context.Background(), lockfile.New().WithFiles(first))
	if err != nil {
		t.Fatal(err)
	}

	after := testutil.SnapshotTree(t, out)
	for k, v := range before {
		if after[k] != v {
			t.Errorf("%s changed on second run: %q -> %q", k, v, after[k])
		}
	}

	if strings.Contains(logs.String(), "file written") {
		t.Errorf("second run wrote files:\n%s", logs.String())
	}
	if n := strings.Count(logs.String(), "file unchanged"); n != 2 {
		t.Errorf("expected 2 unchanged lines, got %d:\n%s", n, logs.String())
	}
	if !strings.Contains(logs.String(), "written=0 unchanged=2") {
		t.Errorf("missing summary counts:\n%s", logs.String())
	}

	for i := range first {
		if first[i].Path != second[i].Path || !first[i].Date.Equal(second[i].Date) {
			t.Errorf("record %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestBootstrapFile_ChangeDetection(t *testing.T) {
	srv, out := setupServer(t, map[string]string{"motd.txt": "v1"})
	src := filepath.Join(srv.ConfigDir(), "motd.txt")
	dst := filepath.Join(out, "motd.txt")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testutil.SetModTime(t, src, base)

	tests := []struct {
		name    string
		force   bool
		cached  *time.Time
		srcTime time.Time
		want    Outcome
	}{
		{"no record", false, nil, base, Written},
		{"same time", false, &base, base, Unchanged},
		{"older source", false, ptr(base.Add(time.Hour)), base, Unchanged},
		{"newer source", false, &base, base.Add(time.Second), Written},
		{"force same time", true, &base, base, Written},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.RemoveAll(out)
			testutil.SetModTime(t, src, tt.srcTime)

			rec, outcome, err := newEngine(srv, out, tt.force).BootstrapFile(context.Background(), "motd.txt", tt.cached)
			if err != nil {
				t.Fatalf("BootstrapFile: %v", err)
			}
			if outcome != tt.want {
				t.Errorf("outcome = %s, want %s", outcome, tt.want)
			}
			if rec.Path != "motd.txt" {
				t.Errorf("record path = %s", rec.Path)
			}
			if !rec.Date.Equal(tt.srcTime) {
				t.Errorf("record date = %v, want current source time %v", rec.Date, tt.srcTime)
			}

			_, statErr := os.Stat(dst)
			if tt.want == Written && statErr != nil {
				t.Errorf("destination not written: %v", statErr)
			}
			if tt.want == Unchanged && statErr == nil {
				t.Error("destination written for unchanged file")
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestBootstrapFiles_ReprocessesTouchedFile(t *testing.T) {
	srv, out := setupServer(t, map[string]string{
		"a.yml": "a=${MOTD}",
		"b.yml": "b",
	})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testutil.SetModTime(t, filepath.Join(srv.ConfigDir(), "a.yml"), base)
	testutil.SetModTime(t, filepath.Join(srv.ConfigDir(), "b.yml"), base)

	e := newEngine(srv, out, false)
	first, err := e.BootstrapFiles(context.Background(), lockfile.New())
	if err != nil {
		t.Fatal(err)
	}

	// Change a.yml's content and advance its mtime; change b.yml's content
	// but keep its mtime, so only a.yml may be reprocessed.
	testutil.WriteTree(t, srv.ConfigDir(), map[string]string{"a.yml": "a2=${MOTD}", "b.yml": "b2"})
	testutil.SetModTime(t, filepath.Join(srv.ConfigDir(), "a.yml"), base.Add(time.Minute))
	testutil.SetModTime(t, filepath.Join(srv.ConfigDir(), "b.yml"), base)

	second, err := e.BootstrapFiles(context.Background(), lockfile.New().WithFiles(first))
	if err != nil {
		t.Fatal(err)
	}

	if got := testutil.ReadFile(t, filepath.Join(out, "a.yml")); got != "a2=hi" {
		t.Errorf("a.yml = %q, want reprocessed", got)
	}
	if got := testutil.ReadFile(t, filepath.Join(out, "b.yml")); got != "b" {
		t.Errorf("b.yml = %q, want skipped", got)
	}
	if !second[0].Date.Equal(base.Add(time.Minute)) {
		t.Errorf("a.yml record not refreshed: %v", second[0].Date)
	}

	// force reprocesses everything
	if _, err := newEngine(srv, out, true).BootstrapFiles(context.Background(), lockfile.New().WithFiles(second)); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ReadFile(t, filepath.Join(out, "b.yml")); got != "b2" {
		t.Errorf("b.yml = %q after force, want b2", got)
	}
}

func TestBootstrapFiles_Eula(t *testing.T) {
	tests := []struct {
		name     string
		eulaArgs bool
		jar      config.JarType
		wantFile bool
	}{
		{"requested and unsupported", true, config.JarVanilla, true},
		{"requested and supported", true, config.JarPaper, false},
		{"not requested", false, config.JarVanilla, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, out := setupServer(t, map[string]string{"server.properties": "x=1"})
			srv.Launcher.EulaArgs = tt.eulaArgs
			srv.Jar.Type = tt.jar

			records, err := newEngine(srv, out, false).BootstrapFiles(context.Background(), lockfile.New())
			if err != nil {
				t.Fatal(err)
			}

			data, err := os.ReadFile(filepath.Join(out, EulaFileName))
			if tt.wantFile {
				if err != nil {
					t.Fatalf("eula.txt missing: %v", err)
				}
				if string(data) != "eula=true\n" {
					t.Errorf("eula.txt = %q", data)
				}
			} else if err == nil {
				t.Error("eula.txt written unexpectedly")
			}

			for _, r := range records {
				if r.Path == EulaFileName {
					t.Error("eula.txt recorded in lockfile")
				}
			}
			if len(records) != 1 {
				t.Errorf("expected 1 record, got %d", len(records))
			}
		})
	}
}

func TestBootstrapFiles_FailureNamesPath(t *testing.T) {
	srv, out := setupServer(t, map[string]string{"ok.yml": "ok"})
	broken := filepath.Join(srv.ConfigDir(), "broken.yml")
	if err := os.Symlink(filepath.Join(srv.Path, "does-not-exist"), broken); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := newEngine(srv, out, false).BootstrapFiles(context.Background(), lockfile.New())
	if err == nil {
		t.Fatal("expected error for dangling symlink")
	}
	if !strings.Contains(err.Error(), broken) {
		t.Errorf("error %q does not name %s", err, broken)
	}
}

func TestBootstrapFiles_NoConfigDir(t *testing.T) {
	root := t.TempDir()
	srv := &config.Server{Name: "x", MCVersion: "1", Jar: config.JarConfig{Type: config.JarVanilla}, Path: root}
	out := filepath.Join(root, "server")

	records, err := newEngine(srv, out, false).BootstrapFiles(context.Background(), lockfile.New())
	if err != nil {
		t.Fatalf("BootstrapFiles: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %v", records)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestBootstrapPath(t *testing.T) {
	srv, out := setupServer(t, map[string]string{"plugins/x/config.yml": "n=${SERVER_NAME}"})
	e := newEngine(srv, out, false)

	ok, err := e.BootstrapPath(context.Background(), filepath.Join(srv.ConfigDir(), "plugins", "x", "config.yml"))
	if err != nil || !ok {
		t.Fatalf("BootstrapPath = %v, %v", ok, err)
	}
	if got := testutil.ReadFile(t, filepath.Join(out, "plugins", "x", "config.yml")); got != "n=Foo" {
		t.Errorf("bootstrapped content = %q", got)
	}

	ok, err = e.BootstrapPath(context.Background(), filepath.Join(srv.Path, "server.toml"))
	if err != nil || ok {
		t.Errorf("path outside config tree: ok=%v err=%v", ok, err)
	}
}

func TestBootstrap_CancelledContext(t *testing.T) {
	srv, out := setupServer(t, map[string]string{"motd.txt": "hi"})
	e := newEngine(srv, out, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := e.BootstrapFile(ctx, "motd.txt", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("BootstrapFile error = %v, want context.Canceled", err)
	}
	if _, err := e.BootstrapPath(ctx, filepath.Join(srv.ConfigDir(), "motd.txt")); !errors.Is(err, context.Canceled) {
		t.Errorf("BootstrapPath error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Join(out, "motd.txt")); !os.IsNotExist(err) {
		t.Errorf("file written after cancellation: %v", err)
	}
}

func TestBootstrapFiles_PreservesOpaqueBytes(t *testing.T) {
	payload := string([]byte{0x00, 0xff, '$', '{', 'X', '}', 0x10})
	srv, out := setupServer(t, map[string]string{"world/level.dat": payload})

	if _, err := newEngine(srv, out, false).BootstrapFiles(context.Background(), lockfile.New()); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ReadFile(t, filepath.Join(out, "world", "level.dat")); got != payload {
		t.Errorf("opaque file altered: %q", got)
	}
}
