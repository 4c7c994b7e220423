package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/podscript/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	base := func() *config.Config { return config.Default() }

	tests := []struct {
		name        string
		edit        func(c *config.Config)
		wantLog     bool
		wantScript  bool
		wantSave    bool
		wantRestart []string
	}{
		{name: "no changes", edit: func(*config.Config) {}},
		{
			name:    "log level",
			edit:    func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLog: true,
		},
		{
			name:       "default rate",
			edit:       func(c *config.Config) { c.Script.DefaultWordsPerMinute = 200 },
			wantScript: true,
		},
		{
			name:       "default sound duration",
			edit:       func(c *config.Config) { c.Script.DefaultSoundDuration = 7 },
			wantScript: true,
		},
		{
			name:     "autosave",
			edit:     func(c *config.Config) { c.Script.Autosave = true },
			wantSave: true,
		},
		{
			name: "seed files alone are not hot",
			edit: func(c *config.Config) { c.Script.SeedFiles = []string{"a.yaml"} },
		},
		{
			name: "restart-only settings",
			edit: func(c *config.Config) {
				c.Server.ListenAddr = ":9090"
				c.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"}
				c.Store.Backend = config.StoreFile
				c.MCP.Enabled = true
				c.Observe.ServiceName = "other"
			},
			wantRestart: []string{"server.listen_addr", "server.tls", "store", "mcp", "observe"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := base(), base()
			tc.edit(new)
			d := config.Diff(old, new)

			if d.LogLevelChanged != tc.wantLog {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tc.wantLog)
			}
			if tc.wantLog && d.NewLogLevel != new.Server.LogLevel {
				t.Errorf("NewLogLevel = %q, want %q", d.NewLogLevel, new.Server.LogLevel)
			}
			if d.ScriptDefaultsChanged != tc.wantScript {
				t.Errorf("ScriptDefaultsChanged = %v, want %v", d.ScriptDefaultsChanged, tc.wantScript)
			}
			if d.AutosaveChanged != tc.wantSave {
				t.Errorf("AutosaveChanged = %v, want %v", d.AutosaveChanged, tc.wantSave)
			}
			if !slices.Equal(d.RestartRequired, tc.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tc.wantRestart)
			}
			if want := tc.wantLog || tc.wantScript || tc.wantSave; d.Changed() != want {
				t.Errorf("Changed() = %v, want %v", d.Changed(), want)
			}
		})
	}
}
