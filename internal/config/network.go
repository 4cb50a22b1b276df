package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// NetworkFileName is looked up in the parent directory of a server root
const NetworkFileName = "network.toml"

// Network describes the network a server belongs to
type Network struct {
	Name string `toml:"name"`
}

// LoadNetwork loads network.toml from the parent of serverRoot.
// A missing file is not an error; it yields a nil network.
func LoadNetwork(serverRoot string) (*Network, error) {
	path := filepath.Join(filepath.Dir(serverRoot), NetworkFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read network file: %w", err)
	}

	var nw Network
	if err := toml.Unmarshal(data, &nw); err != nil {
		return nil, fmt.Errorf("failed to parse network file %s: %w", path, err)
	}
	if nw.Name == "" {
		return nil, fmt.Errorf("invalid network configuration %s: name is required", path)
	}

	return &nw, nil
}
