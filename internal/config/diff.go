package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ScriptDefaultsChanged is true if the default speaking rate or sound
	// duration changed.
	ScriptDefaultsChanged bool
	NewScriptDefaults     ScriptConfig

	AutosaveChanged bool

	// RestartRequired lists the changed settings that only take effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether d holds any hot-reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ScriptDefaultsChanged || d.AutosaveChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Script.DefaultWordsPerMinute != new.Script.DefaultWordsPerMinute ||
		old.Script.DefaultSoundDuration != new.Script.DefaultSoundDuration {
		d.ScriptDefaultsChanged = true
		d.NewScriptDefaults = new.Script
	}
	if old.Script.Autosave != new.Script.Autosave {
		d.AutosaveChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if (old.Server.TLS == nil) != (new.Server.TLS == nil) ||
		(old.Server.TLS != nil && *old.Server.TLS != *new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	if old.Observe != new.Observe {
		d.RestartRequired = append(d.RestartRequired, "observe")
	}

	return d
}
