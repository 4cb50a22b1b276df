// Package sources resolves downloadable artifacts against remote providers.
package sources

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Metadata describes a resource as reported by its source
type Metadata struct {
	Name    string
	Version string
}

// Source is a provider of downloadable artifacts
type Source interface {
	// Name identifies the source in server.toml and in the lockfile
	Name() string
	// ResolveID turns a user-supplied identifier into the canonical id
	ResolveID(identifier string) string
	// FetchMetadata returns the display name and version label of id
	FetchMetadata(ctx context.Context, id string) (Metadata, error)
	// FetchLatestVersion returns the identifier of the newest version of id
	FetchLatestVersion(ctx context.Context, id string) (string, error)
	// DownloadURL builds the download location of id without any request
	DownloadURL(id string) string
}

// StatusError is returned when a source answers with a non-success status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// MissingFieldError is returned when a response lacks a required field
type MissingFieldError struct {
	Resource string
	Field    string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("resource %s: response is missing field %q", e.Resource, e.Field)
}

// Registry maps source names to sources
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates a registry holding the given sources
func NewRegistry(srcs ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(srcs))}
	for _, s := range srcs {
		r.sources[s.Name()] = s
	}
	return r
}

// DefaultRegistry returns the built-in sources sharing one http client
func DefaultRegistry(client *http.Client) *Registry {
	return NewRegistry(NewSpiget(client, ""), NewURL())
}

// Get returns the source registered under name
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown artifact source %q", name)
	}
	return s, nil
}

// Names returns the registered source names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForEach runs fn for every index of n items with at most limit calls in
// flight. The first error cancels the context passed to the remaining calls
// and is returned.
func ForEach(ctx context.Context, limit, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
