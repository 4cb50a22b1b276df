package bootstrap

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"server.properties", Templated},
		{"config.yml", Templated},
		{"settings.json5", Templated},
		{"plugins/x/config.yaml", Templated},
		{"bukkit.conf", Templated},
		{"paper.config", Templated},
		{"velocity.toml", Templated},
		{"ops.json", Templated},
		{"motd.txt", Templated},
		{"rcon.secret", Templated},
		{"plugin.jar", Opaque},
		{"world.dat", Opaque},
		{"server-icon.png", Opaque},
		{"README", Opaque},
		{"CONFIG.YML", Opaque},
		{"archive.yml.gz", Opaque},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := Classify(tt.path); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}

func TestStripRoot(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"config/plugins/x/y.yml", "plugins/x/y.yml", false},
		{"config/server.properties", "server.properties", false},
		{"config/a/b/c/d/e.txt", "a/b/c/d/e.txt", false},
		{"config", "", true},
		{"config/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := StripRoot(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("StripRoot(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("StripRoot(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
