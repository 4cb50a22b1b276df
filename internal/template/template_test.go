package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/mcbuild/internal/config"
)

func testServer() *config.Server {
	return &config.Server{
		Name:           "Foo",
		MCVersion:      "1.20.4",
		Plugins:        []config.Downloadable{{Type: "spigot", ID: "1"}, {Type: "spigot", ID: "2"}},
		Mods:           []config.Downloadable{{Type: "url", URL: "https://a/b.jar"}},
		Worlds:         []config.World{{Name: "world"}, {Name: "nether"}, {Name: "end"}},
		ClientsideMods: nil,
		Variables: map[string]string{
			"MOTD":  "Hello",
			"PORT":  "25566",
			"SHELL": "from-variables",
		},
	}
}

func TestInterpolate(t *testing.T) {
	r := NewResolver(testServer(), MapEnv{
		"SHELL":     "from-env",
		"RCON_PASS": "hunter2",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"server name", "${SERVER_NAME}", "Foo"},
		{"version alias", "${SERVER_VERSION} ${mcver} ${mcversion}", "1.20.4 1.20.4 1.20.4"},
		{"counts", "${PLUGIN_COUNT}/${MOD_COUNT}/${WORLD_COUNT}/${CLIENTSIDE_MOD_COUNT}", "2/1/3/0"},
		{"user variable", "motd=${MOTD}", "motd=Hello"},
		{"variable beats env", "${SHELL}", "from-variables"},
		{"env fallback", "rcon.password=${RCON_PASS}", "rcon.password=hunter2"},
		{"default", "${MISSING:bar}", "bar"},
		{"default trimmed", "${ MISSING : bar baz }", "bar baz"},
		{"default ignored when resolved", "${PORT:25565}", "25566"},
		{"first colon splits", "${MISSING:a:b}", "a:b"},
		{"missing is empty", "x=${MISSING}.", "x=."},
		{"key is trimmed", "${  SERVER_NAME  }", "Foo"},
		{"case sensitive", "${server_name}", ""},
		{"passthrough", "no placeholders here: $HOME {x} $", "no placeholders here: $HOME {x} $"},
		{"unterminated", "a ${SERVER_NAME", "a ${SERVER_NAME"},
		{"adjacent", "${SERVER_NAME}${SERVER_NAME}", "FooFoo"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.in, r))
		})
	}
}

func TestExpand_SinglePass(t *testing.T) {
	srv := testServer()
	srv.Variables["NESTED"] = "${SERVER_NAME}"
	r := NewResolver(srv, MapEnv{})

	out, missing := Expand("${NESTED}", r)
	assert.Equal(t, "${SERVER_NAME}", out, "substituted text must not be re-scanned")
	assert.Empty(t, missing)
}

func TestExpand_ReportsMissing(t *testing.T) {
	r := NewResolver(testServer(), MapEnv{})

	out, missing := Expand("a=${A}\nb=${B:def}\nc=${C}\n", r)
	assert.Equal(t, "a=\nb=def\nc=\n", out)
	require.Len(t, missing, 2)
	assert.Equal(t, []string{"A", "C"}, missing)
}

func TestOSEnv(t *testing.T) {
	t.Setenv("MCBUILD_TEMPLATE_TEST", "yes")
	r := NewResolver(testServer(), nil)

	assert.Equal(t, "yes", Interpolate("${MCBUILD_TEMPLATE_TEST}", r))
}
