package sources

import (
	"context"
	"net/url"
	"path"
)

// URL serves artifacts from a plain download URL. The identifier is the URL
// and the URL doubles as its version, so editing it triggers a re-download.
type URL struct{}

// NewURL creates a direct-URL source
func NewURL() *URL { return &URL{} }

// Name implements Source
func (URL) Name() string { return "url" }

// ResolveID implements Source
func (URL) ResolveID(identifier string) string { return identifier }

// FetchMetadata implements Source
func (URL) FetchMetadata(_ context.Context, id string) (Metadata, error) {
	name := id
	if u, err := url.Parse(id); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	return Metadata{Name: name}, nil
}

// FetchLatestVersion implements Source
func (URL) FetchLatestVersion(_ context.Context, id string) (string, error) {
	return id, nil
}

// DownloadURL implements Source
func (URL) DownloadURL(id string) string { return id }
