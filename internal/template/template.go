// Package template substitutes ${KEY} and ${KEY:default} placeholders in
// bootstrapped config files.
//
// Keys resolve, in order, against the reserved keys computed from the server
// description, the server's user variables, the environment, and finally the
// inline default. A key that resolves nowhere becomes the empty string and
// is reported back to the caller by Expand.
package template

import (
	"os"
	"strconv"
	"strings"

	"github.com/schaermu/mcbuild/internal/config"
)

// Env looks up environment variables
type Env interface {
	Lookup(key string) (string, bool)
}

// OSEnv reads the process environment
type OSEnv struct{}

// Lookup implements Env
func (OSEnv) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnv is a fixed environment, used in tests and dry runs
type MapEnv map[string]string

// Lookup implements Env
func (m MapEnv) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Resolver resolves placeholder keys for one server
type Resolver struct {
	server *config.Server
	env    Env
}

// NewResolver creates a resolver. A nil env means the process environment.
func NewResolver(server *config.Server, env Env) *Resolver {
	if env == nil {
		env = OSEnv{}
	}
	return &Resolver{server: server, env: env}
}

// Resolve returns the value of key, reporting whether it was found
func (r *Resolver) Resolve(key string) (string, bool) {
	if v, ok := r.reserved(key); ok {
		return v, true
	}
	if v, ok := r.server.Variables[key]; ok {
		return v, true
	}
	return r.env.Lookup(key)
}

func (r *Resolver) reserved(key string) (string, bool) {
	s := r.server
	switch key {
	case "SERVER_NAME":
		return s.Name, true
	case "SERVER_VERSION", "mcver", "mcversion":
		return s.MCVersion, true
	case "PLUGIN_COUNT":
		return strconv.Itoa(len(s.Plugins)), true
	case "MOD_COUNT":
		return strconv.Itoa(len(s.Mods)), true
	case "WORLD_COUNT":
		return strconv.Itoa(len(s.Worlds)), true
	case "CLIENTSIDE_MOD_COUNT":
		return strconv.Itoa(len(s.ClientsideMods)), true
	}
	return "", false
}

// Interpolate substitutes every placeholder in src
func Interpolate(src string, r *Resolver) string {
	out, _ := Expand(src, r)
	return out
}

// Expand substitutes every placeholder in src in a single pass and returns
// the keys that had neither a value nor a default.
func Expand(src string, r *Resolver) (string, []string) {
	var (
		b       strings.Builder
		missing []string
	)
	b.Grow(len(src))

	rest := src
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start+2:], '}')
		if end < 0 {
			// unterminated, keep verbatim
			b.WriteString(rest)
			break
		}

		b.WriteString(rest[:start])
		body := rest[start+2 : start+2+end]
		rest = rest[start+2+end+1:]

		key, def, hasDefault := parsePlaceholder(body)
		if v, ok := r.Resolve(key); ok {
			b.WriteString(v)
			continue
		}
		if hasDefault {
			b.WriteString(def)
			continue
		}
		missing = append(missing, key)
	}

	return b.String(), missing
}

// parsePlaceholder splits "KEY" or "KEY:DEFAULT" on the first colon
func parsePlaceholder(body string) (key, def string, hasDefault bool) {
	body = strings.TrimSpace(body)
	if k, d, ok := strings.Cut(body, ":"); ok {
		return strings.TrimSpace(k), strings.TrimSpace(d), true
	}
	return body, "", false
}
