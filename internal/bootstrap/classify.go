package bootstrap

import (
	"path/filepath"
	"strings"
)

// Kind tells how a config file is materialized in the output tree
type Kind int

const (
	// Opaque files are copied byte for byte
	Opaque Kind = iota
	// Templated files go through placeholder substitution
	Templated
)

func (k Kind) String() string {
	if k == Templated {
		return "templated"
	}
	return "opaque"
}

// TemplatedExtensions are the extensions, without the dot and matched
// case-sensitively, of files that get placeholder substitution
var TemplatedExtensions = []string{
	"properties",
	"txt",
	"yaml",
	"yml",
	"conf",
	"config",
	"toml",
	"json",
	"json5",
	"secret",
}

// Classify returns the kind of the file at path
func Classify(path string) Kind {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, t := range TemplatedExtensions {
		if ext == t {
			return Templated
		}
	}
	return Opaque
}
