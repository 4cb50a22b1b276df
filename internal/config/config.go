package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ServerFileName is the name of the server description inside a server root
const ServerFileName = "server.toml"

// JarType identifies the server software variant
type JarType string

const (
	JarVanilla    JarType = "vanilla"
	JarPaper      JarType = "paper"
	JarPurpur     JarType = "purpur"
	JarFolia      JarType = "folia"
	JarVelocity   JarType = "velocity"
	JarWaterfall  JarType = "waterfall"
	JarBungeeCord JarType = "bungeecord"
	JarFabric     JarType = "fabric"
	JarQuilt      JarType = "quilt"
	JarForge      JarType = "forge"
	JarNeoForge   JarType = "neoforge"
)

// SupportsEulaArgs reports whether the jar accepts the EULA on the command
// line, in which case no eula.txt has to be written.
func (j JarType) SupportsEulaArgs() bool {
	switch j {
	case JarPaper, JarPurpur, JarFolia:
		return true
	}
	return false
}

// Server is the declarative description of one game server
type Server struct {
	Name           string            `toml:"name"`
	MCVersion      string            `toml:"mc_version"`
	Launcher       LauncherConfig    `toml:"launcher"`
	Jar            JarConfig         `toml:"jar"`
	Variables      map[string]string `toml:"variables"`
	Plugins        []Downloadable    `toml:"plugins"`
	Mods           []Downloadable    `toml:"mods"`
	ClientsideMods []Downloadable    `toml:"clientsidemods"`
	Worlds         []World           `toml:"worlds"`

	// Path is the server root: the directory holding server.toml
	Path string `toml:"-"`
}

// LauncherConfig configures how the server process is started
type LauncherConfig struct {
	EulaArgs bool `toml:"eula_args"`
}

// JarConfig selects the server jar
type JarConfig struct {
	Type JarType `toml:"type"`
}

// Downloadable is an artifact fetched from an artifact source
type Downloadable struct {
	Type     string `toml:"type"`
	ID       string `toml:"id"`
	URL      string `toml:"url"`
	Filename string `toml:"filename"`
}

// Identifier returns the source-specific identifier of the artifact
func (d Downloadable) Identifier() string {
	if d.Type == "url" {
		return d.URL
	}
	return d.ID
}

// World is a named world shipped with the server
type World struct {
	Name string `toml:"name"`
}

// Load reads and parses a server.toml file
func Load(path string) (*Server, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server file: %w", err)
	}

	var srv Server
	if err := toml.Unmarshal(data, &srv); err != nil {
		return nil, fmt.Errorf("failed to parse server file %s: %w", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server root: %w", err)
	}
	srv.Path = abs

	srv.expandEnv()
	srv.applyDefaults()

	if err := srv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	return &srv, nil
}

// expandEnv expands environment variables in URL fields
func (s *Server) expandEnv() {
	for _, list := range [][]Downloadable{s.Plugins, s.Mods, s.ClientsideMods} {
		for i := range list {
			list[i].URL = os.ExpandEnv(list[i].URL)
		}
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (s *Server) applyDefaults() {
	if s.Jar.Type == "" {
		s.Jar.Type = JarVanilla
	}
	if s.Variables == nil {
		s.Variables = make(map[string]string)
	}
}

// Validate checks the server description for errors
func (s *Server) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if s.MCVersion == "" {
		return fmt.Errorf("mc_version is required")
	}

	switch s.Jar.Type {
	case JarVanilla, JarPaper, JarPurpur, JarFolia, JarVelocity, JarWaterfall,
		JarBungeeCord, JarFabric, JarQuilt, JarForge, JarNeoForge:
		// valid
	default:
		return fmt.Errorf("invalid jar.type: %s", s.Jar.Type)
	}

	for field, list := range map[string][]Downloadable{
		"plugins":        s.Plugins,
		"mods":           s.Mods,
		"clientsidemods": s.ClientsideMods,
	} {
		seen := make(map[string]bool)
		for i, d := range list {
			if err := d.validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", field, i, err)
			}
			if d.Filename == "" {
				continue
			}
			if seen[d.Filename] {
				return fmt.Errorf("%s[%d]: duplicate filename %q", field, i, d.Filename)
			}
			seen[d.Filename] = true
		}
	}

	return nil
}

func (d Downloadable) validate() error {
	switch d.Type {
	case "spigot":
		if d.ID == "" {
			return fmt.Errorf("id is required for spigot resources")
		}
	case "url":
		if !strings.HasPrefix(d.URL, "https://") && !strings.HasPrefix(d.URL, "http://") {
			return fmt.Errorf("url must be an http(s) URL: %q", d.URL)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown type %q (must be spigot or url)", d.Type)
	}
	if strings.ContainsAny(d.Filename, `/\`) {
		return fmt.Errorf("filename must not contain path separators: %q", d.Filename)
	}
	return nil
}

// ConfigDir returns the config tree that gets bootstrapped into the output
func (s *Server) ConfigDir() string {
	return filepath.Join(s.Path, "config")
}

// DefaultOutputDir returns the output directory used when none is given
func (s *Server) DefaultOutputDir() string {
	return filepath.Join(s.Path, "server")
}
