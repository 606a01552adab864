package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig pins the defaults so changes to them are deliberate.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	if cfg.BackendURL != "http://127.0.0.1:8000" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.Timeout != 30*time.Second || cfg.RequestTTL != 30*time.Second {
		t.Errorf("Timeout = %v, RequestTTL = %v", cfg.Timeout, cfg.RequestTTL)
	}
	if cfg.Debounce != 300*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Debounce)
	}
	if cfg.ResultSelector != "div.g a" {
		t.Errorf("ResultSelector = %q", cfg.ResultSelector)
	}
	if len(cfg.SkipHosts) != 2 || cfg.SkipHosts[0] != "localhost" || cfg.SkipHosts[1] != "google.com" {
		t.Errorf("SkipHosts = %v", cfg.SkipHosts)
	}
	if len(cfg.SearchDomains) != 1 || cfg.SearchDomains[0] != "google.com" {
		t.Errorf("SearchDomains = %v", cfg.SearchDomains)
	}
	if cfg.Store != StoreSQLite || cfg.Format != FormatText || cfg.LogFormat != FormatText {
		t.Errorf("Store/Format/LogFormat = %q/%q/%q", cfg.Store, cfg.Format, cfg.LogFormat)
	}
	if cfg.DataDir != XDGDataDir() {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "relative backend URL", mutate: func(c *Config) { c.BackendURL = "/scan" }, wantErr: ErrInvalidBackendURL},
		{name: "ftp backend URL", mutate: func(c *Config) { c.BackendURL = "ftp://x" }, wantErr: ErrInvalidBackendURL},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: ErrInvalidTimeout},
		{name: "zero request TTL", mutate: func(c *Config) { c.RequestTTL = 0 }, wantErr: ErrInvalidRequestTTL},
		{name: "negative debounce", mutate: func(c *Config) { c.Debounce = -time.Second }, wantErr: ErrInvalidDebounce},
		{name: "zero debounce is allowed", mutate: func(c *Config) { c.Debounce = 0 }},
		{name: "zero scan limit", mutate: func(c *Config) { c.ScanLimit = 0 }, wantErr: ErrInvalidScanLimit},
		{name: "negative body size", mutate: func(c *Config) { c.MaxBodySize = -1 }, wantErr: ErrInvalidMaxBodySize},
		{name: "bad selector", mutate: func(c *Config) { c.ResultSelector = "a[href" }, wantErr: ErrInvalidSelector},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "redis" }, wantErr: ErrUnknownStore},
		{name: "unknown format", mutate: func(c *Config) { c.Format = "xml" }, wantErr: ErrUnknownFormat},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "logfmt" }, wantErr: ErrUnknownFormat},
		{name: "memory store", mutate: func(c *Config) { c.Store = StoreMemory }},
		{name: "https backend", mutate: func(c *Config) { c.BackendURL = "https://cyberbuddy.example" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.cyberbuddy")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads and applies valid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".cyberbuddy")
		content := `backend:
  url: https://scan.example
  timeout: 5s
  scanLimit: 8
observer:
  selector: "#rso a"
  skipHosts: [localhost, intranet.example]
  debounce: 50ms
store:
  driver: memory
report:
  format: markdown
  color: false
log:
  format: json
  verbose: true
`
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		file, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg := NewConfig()
		file.Apply(cfg)

		if cfg.BackendURL != "https://scan.example" || cfg.Timeout != 5*time.Second || cfg.ScanLimit != 8 {
			t.Errorf("backend = %q %v %d", cfg.BackendURL, cfg.Timeout, cfg.ScanLimit)
		}
		if cfg.ResultSelector != "#rso a" || cfg.Debounce != 50*time.Millisecond {
			t.Errorf("observer = %q %v", cfg.ResultSelector, cfg.Debounce)
		}
		if len(cfg.SkipHosts) != 2 || cfg.SkipHosts[1] != "intranet.example" {
			t.Errorf("SkipHosts = %v", cfg.SkipHosts)
		}
		if len(cfg.SearchDomains) != 1 {
			t.Errorf("unset keys keep defaults, SearchDomains = %v", cfg.SearchDomains)
		}
		if cfg.Store != StoreMemory || cfg.Format != FormatMarkdown || cfg.Color {
			t.Errorf("store/report = %q %q %v", cfg.Store, cfg.Format, cfg.Color)
		}
		if cfg.LogFormat != FormatJSON || !cfg.Verbose {
			t.Errorf("log = %q %v", cfg.LogFormat, cfg.Verbose)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".cyberbuddy")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("explicit file", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("store:\n  driver: memory\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Store != StoreMemory || cfg.ConfigFilePath != configPath {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		t.Parallel()

		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("Load() error = %v", err)
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("{}"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{"data": XDGDataDir(), "config": XDGConfigDir()} {
		if filepath.Base(dir) != AppName {
			t.Errorf("%s dir %q does not end in %q", name, dir, AppName)
		}
	}
}
