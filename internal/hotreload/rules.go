// Package hotreload watches a server's source tree during development and
// maps changed files to actions on the running server.
package hotreload

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/schaermu/mcbuild/internal/config"
)

// Rule pairs a compiled path pattern with its action
type Rule struct {
	Pattern string
	Action  config.Action

	matcher glob.Glob
}

// CompileRules compiles the patterns of a hot-reload configuration.
// Patterns are compiled without separators, so '*' also crosses '/'.
func CompileRules(files []config.HotReloadFile) ([]Rule, error) {
	rules := make([]Rule, 0, len(files))
	for i, f := range files {
		g, err := glob.Compile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("files[%d]: invalid pattern %q: %w", i, f.Path, err)
		}
		rules = append(rules, Rule{Pattern: f.Path, Action: f.Action, matcher: g})
	}
	return rules, nil
}

// Match returns the first rule whose pattern matches rel, a slash-separated
// path relative to the server root.
func Match(rules []Rule, rel string) (Rule, bool) {
	for _, r := range rules {
		if r.matcher.Match(rel) {
			return r, true
		}
	}
	return Rule{}, false
}

// relativeTo converts path into the slash form rules match against. Both
// arguments must be absolute; paths outside root are rejected.
func relativeTo(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
