// Package lockfile records what a build produced in an output directory so
// later builds can skip unchanged work and remove stale files.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileName is the name of the lockfile inside an output directory
const FileName = ".mcbuild.lock"

// Lockfile records what a build produced in one output directory
type Lockfile struct {
	Files  []FileRecord  `json:"files"`
	Addons []AddonRecord `json:"addons"`
}

// FileRecord tracks one bootstrapped config file
type FileRecord struct {
	Path string    `json:"path"` // slash-separated, relative to the config root
	Date time.Time `json:"date"` // source modification time when last seen
}

// AddonRecord tracks one downloaded artifact
type AddonRecord struct {
	Kind     string `json:"kind"`   // plugin or mod
	Source   string `json:"source"` // artifact source name
	ID       string `json:"id"`     // canonical id within the source
	Version  string `json:"version"`
	Filename string `json:"filename"`
}

// New returns an empty lockfile
func New() *Lockfile {
	return &Lockfile{
		Files:  make([]FileRecord, 0),
		Addons: make([]AddonRecord, 0),
	}
}

// Path returns the lockfile location for an output directory
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Load reads the lockfile of outputDir. A missing lockfile yields an empty one.
func Load(outputDir string) (*Lockfile, error) {
	data, err := os.ReadFile(Path(outputDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	lf := New()
	if err := json.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("failed to parse lockfile %s: %w", Path(outputDir), err)
	}
	if lf.Files == nil {
		lf.Files = make([]FileRecord, 0)
	}
	if lf.Addons == nil {
		lf.Addons = make([]AddonRecord, 0)
	}

	return lf, nil
}

// Save persists the lockfile into outputDir
func Save(outputDir string, lf *Lockfile) error {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(Path(outputDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	return nil
}

// FileTimes indexes file records by path
func (l *Lockfile) FileTimes() map[string]time.Time {
	times := make(map[string]time.Time, len(l.Files))
	for _, f := range l.Files {
		times[f.Path] = f.Date
	}
	return times
}

// Addon returns the record for (kind, source, id), if present
func (l *Lockfile) Addon(kind, source, id string) (AddonRecord, bool) {
	for _, a := range l.Addons {
		if a.Kind == kind && a.Source == source && a.ID == id {
			return a, true
		}
	}
	return AddonRecord{}, false
}

// AddonsOfKind returns the addon records of one kind
func (l *Lockfile) AddonsOfKind(kind string) []AddonRecord {
	var out []AddonRecord
	for _, a := range l.Addons {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// WithFiles returns a copy of l whose file records are replaced by records,
// sorted by path. A later record for the same path wins.
func (l *Lockfile) WithFiles(records []FileRecord) *Lockfile {
	byPath := make(map[string]FileRecord, len(records))
	for _, r := range records {
		byPath[r.Path] = r
	}

	files := make([]FileRecord, 0, len(byPath))
	for _, r := range byPath {
		files = append(files, r)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &Lockfile{
		Files:  files,
		Addons: append(make([]AddonRecord, 0, len(l.Addons)), l.Addons...),
	}
}

// WithAddons returns a copy of l in which the addon records of kind are
// replaced by records.
func (l *Lockfile) WithAddons(kind string, records []AddonRecord) *Lockfile {
	addons := make([]AddonRecord, 0, len(l.Addons)+len(records))
	for _, a := range l.Addons {
		if a.Kind != kind {
			addons = append(addons, a)
		}
	}
	addons = append(addons, records...)
	sort.SliceStable(addons, func(i, j int) bool {
		if addons[i].Kind != addons[j].Kind {
			return addons[i].Kind < addons[j].Kind
		}
		if addons[i].Source != addons[j].Source {
			return addons[i].Source < addons[j].Source
		}
		return addons[i].ID < addons[j].ID
	})

	return &Lockfile{
		Files:  append(make([]FileRecord, 0, len(l.Files)), l.Files...),
		Addons: addons,
	}
}
