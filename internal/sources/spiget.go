package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// SpigetBaseURL is the public Spiget API
const SpigetBaseURL = "https://api.spiget.org/v2"

// Spiget resolves SpigotMC resources through the Spiget API
type Spiget struct {
	client  *http.Client
	baseURL string
}

// NewSpiget creates a Spiget source. An empty baseURL selects SpigetBaseURL.
func NewSpiget(client *http.Client, baseURL string) *Spiget {
	if baseURL == "" {
		baseURL = SpigetBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Spiget{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Name implements Source
func (s *Spiget) Name() string { return "spigot" }

// ResolveID extracts the numeric resource id from identifiers of the form
// "Name.1234". The suffix after the last dot is the id; an identifier
// without a dot, or ending in one, is returned unchanged.
func (s *Spiget) ResolveID(identifier string) string {
	return ResourceID(identifier)
}

// ResourceID implements the Spiget identifier rule of ResolveID
func ResourceID(identifier string) string {
	i := strings.LastIndexByte(identifier, '.')
	if i >= 0 && i < len(identifier)-1 {
		return identifier[i+1:]
	}
	return identifier
}

type spigetResource struct {
	Name *string `json:"name"`
	Tag  *string `json:"tag"`
}

type spigetVersion struct {
	ID *int64 `json:"id"`
}

// FetchMetadata implements Source
func (s *Spiget) FetchMetadata(ctx context.Context, id string) (Metadata, error) {
	id = s.ResolveID(id)

	var res spigetResource
	if err := s.getJSON(ctx, s.baseURL+"/resources/"+id, &res); err != nil {
		return Metadata{}, fmt.Errorf("fetching spigot resource %s: %w", id, err)
	}
	if res.Name == nil {
		return Metadata{}, &MissingFieldError{Resource: id, Field: "name"}
	}
	if res.Tag == nil {
		return Metadata{}, &MissingFieldError{Resource: id, Field: "tag"}
	}

	return Metadata{Name: *res.Name, Version: *res.Tag}, nil
}

// FetchLatestVersion implements Source
func (s *Spiget) FetchLatestVersion(ctx context.Context, id string) (string, error) {
	id = s.ResolveID(id)

	var ver spigetVersion
	if err := s.getJSON(ctx, s.baseURL+"/resources/"+id+"/versions/latest", &ver); err != nil {
		return "", fmt.Errorf("fetching latest version of spigot resource %s: %w", id, err)
	}
	if ver.ID == nil {
		return "", &MissingFieldError{Resource: id, Field: "id"}
	}

	return strconv.FormatInt(*ver.ID, 10), nil
}

// DownloadURL implements Source
func (s *Spiget) DownloadURL(id string) string {
	return s.baseURL + "/resources/" + s.ResolveID(id) + "/download"
}

func (s *Spiget) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}
