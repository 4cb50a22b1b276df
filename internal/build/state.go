package build

import (
	"net/http"

	"github.com/schaermu/mcbuild/internal/config"
	"github.com/schaermu/mcbuild/internal/lockfile"
)

// State is the run context handed from stage to stage. Stages receive the
// previous State and return the next one; they enrich NewLock and leave
// OldLock untouched.
type State struct {
	Server    *config.Server
	Network   *config.Network
	HTTP      *http.Client
	Force     bool
	Skip      map[string]bool
	OutputDir string
	OldLock   *lockfile.Lockfile
	NewLock   *lockfile.Lockfile
}

// Skipped reports whether the stage called name is in the skip set
func (s State) Skipped(name string) bool {
	return s.Skip[name]
}
