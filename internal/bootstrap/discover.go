package bootstrap

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// DiscoverFiles returns every regular file below dir as slash-separated
// paths relative to dir, in lexical order.
func DiscoverFiles(dir string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("can't walk %s: %w", path, err)
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// StripRoot drops the leading segment of a slash-separated path, turning a
// path relative to the server root ("config/plugins/x.yml") into one
// relative to the scan root ("plugins/x.yml").
func StripRoot(rel string) (string, error) {
	rel = filepath.ToSlash(filepath.Clean(rel))
	_, rest, ok := strings.Cut(rel, "/")
	if !ok || rest == "" {
		return "", fmt.Errorf("path %q has no segments below its root", rel)
	}
	return rest, nil
}
