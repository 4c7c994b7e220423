package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/podscript/pkg/script"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills empty fields of cfg with their defaults. Fields that
// are already set are left alone, even if invalid.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Script.DefaultWordsPerMinute == 0 {
		cfg.Script.DefaultWordsPerMinute = DefaultWordsPerMinute
	}
	if cfg.Script.DefaultSoundDuration == 0 {
		cfg.Script.DefaultSoundDuration = DefaultSoundDuration
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreMemory
	}
	if cfg.Store.Backend == StoreFile && cfg.Store.Dir == "" {
		cfg.Store.Dir = DefaultStoreDir
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
	if cfg.Observe.ServiceName == "" {
		cfg.Observe.ServiceName = DefaultServiceName
	}
	if cfg.Observe.MetricsPath == "" {
		cfg.Observe.MetricsPath = DefaultMetricsPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Script defaults
	if wpm := cfg.Script.DefaultWordsPerMinute; wpm != 0 && (wpm < script.MinWordsPerMinute || wpm > script.MaxWordsPerMinute) {
		errs = append(errs, fmt.Errorf("script.default_words_per_minute %d is out of range [%d, %d]", wpm, script.MinWordsPerMinute, script.MaxWordsPerMinute))
	}
	if cfg.Script.DefaultSoundDuration < 0 {
		errs = append(errs, fmt.Errorf("script.default_sound_duration %.2f must not be negative", cfg.Script.DefaultSoundDuration))
	}
	seen := make(map[string]int, len(cfg.Script.SeedFiles))
	for i, f := range cfg.Script.SeedFiles {
		if f == "" {
			errs = append(errs, fmt.Errorf("script.seed_files[%d] is empty", i))
			continue
		}
		if prev, ok := seen[f]; ok {
			errs = append(errs, fmt.Errorf("script.seed_files[%d] %q is a duplicate of script.seed_files[%d]", i, f, prev))
		}
		seen[f] = i
	}

	// Store
	switch {
	case cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid():
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, file, postgres", cfg.Store.Backend))
	case cfg.Store.Backend == StorePostgres && cfg.Store.PostgresDSN == "":
		errs = append(errs, errors.New("store.postgres_dsn is required when backend is postgres"))
	case cfg.Store.Backend == StoreFile && cfg.Store.Dir == "":
		errs = append(errs, errors.New("store.dir is required when backend is file"))
	}
	if cfg.Store.Backend == StoreMemory && cfg.Script.Autosave {
		slog.Warn("script.autosave is enabled with the memory store; snapshots are lost on restart")
	}

	// MCP
	if cfg.MCP.Enabled && !validPath(cfg.MCP.Path) {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	// Observe
	if cfg.Observe.MetricsPath != "" && !validPath(cfg.Observe.MetricsPath) {
		errs = append(errs, fmt.Errorf("observe.metrics_path %q must start with /", cfg.Observe.MetricsPath))
	}
	if cfg.MCP.Enabled && cfg.MCP.Path == cfg.Observe.MetricsPath {
		errs = append(errs, fmt.Errorf("mcp.path and observe.metrics_path are both %q", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

func validPath(p string) bool {
	return len(p) > 0 && p[0] == '/'
}
