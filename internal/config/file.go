package config

import "time"

// File is the structure of the .cyberbuddy configuration file.
//
//	backend:
//	  url: http://127.0.0.1:8000
//	  timeout: 30s
//	observer:
//	  selector: div.g a
//	  skipHosts: [localhost, google.com]
type File struct {
	Backend  BackendSection  `yaml:"backend,omitempty"`
	Observer ObserverSection `yaml:"observer,omitempty"`
	Store    StoreSection    `yaml:"store,omitempty"`
	Report   ReportSection   `yaml:"report,omitempty"`
	Log      LogSection      `yaml:"log,omitempty"`
}

// BackendSection configures the classification backend client.
type BackendSection struct {
	URL         string        `yaml:"url,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	UserAgent   string        `yaml:"userAgent,omitempty"`
	MaxBodySize int64         `yaml:"maxBodySize,omitempty"`
	RequestTTL  time.Duration `yaml:"requestTTL,omitempty"`
	ScanLimit   int           `yaml:"scanLimit,omitempty"`
}

// ObserverSection configures page discovery and the guard.
type ObserverSection struct {
	Selector      string        `yaml:"selector,omitempty"`
	SearchDomains []string      `yaml:"searchDomains,omitempty"`
	SkipHosts     []string      `yaml:"skipHosts,omitempty"`
	Debounce      time.Duration `yaml:"debounce,omitempty"`
	MaxPageSize   int64         `yaml:"maxPageSize,omitempty"`
}

// StoreSection configures the shared state store.
type StoreSection struct {
	Driver  string `yaml:"driver,omitempty"`
	DataDir string `yaml:"dataDir,omitempty"`
}

// ReportSection configures report output.
type ReportSection struct {
	Format string `yaml:"format,omitempty"`
	Color  *bool  `yaml:"color,omitempty"`
}

// LogSection configures logging.
type LogSection struct {
	Format  string `yaml:"format,omitempty"`
	Verbose bool   `yaml:"verbose,omitempty"`
}

// Apply copies every value set in the file onto cfg.
func (f *File) Apply(cfg *Config) {
	if f.Backend.URL != "" {
		cfg.BackendURL = f.Backend.URL
	}
	if f.Backend.Timeout != 0 {
		cfg.Timeout = f.Backend.Timeout
	}
	if f.Backend.UserAgent != "" {
		cfg.UserAgent = f.Backend.UserAgent
	}
	if f.Backend.MaxBodySize != 0 {
		cfg.MaxBodySize = f.Backend.MaxBodySize
	}
	if f.Backend.RequestTTL != 0 {
		cfg.RequestTTL = f.Backend.RequestTTL
	}
	if f.Backend.ScanLimit != 0 {
		cfg.ScanLimit = f.Backend.ScanLimit
	}

	if f.Observer.Selector != "" {
		cfg.ResultSelector = f.Observer.Selector
	}
	if len(f.Observer.SearchDomains) > 0 {
		cfg.SearchDomains = f.Observer.SearchDomains
	}
	if len(f.Observer.SkipHosts) > 0 {
		cfg.SkipHosts = f.Observer.SkipHosts
	}
	if f.Observer.Debounce != 0 {
		cfg.Debounce = f.Observer.Debounce
	}
	if f.Observer.MaxPageSize != 0 {
		cfg.MaxPageSize = f.Observer.MaxPageSize
	}

	if f.Store.Driver != "" {
		cfg.Store = f.Store.Driver
	}
	if f.Store.DataDir != "" {
		cfg.DataDir = f.Store.DataDir
	}

	if f.Report.Format != "" {
		cfg.Format = f.Report.Format
	}
	if f.Report.Color != nil {
		cfg.Color = *f.Report.Color
	}

	if f.Log.Format != "" {
		cfg.LogFormat = f.Log.Format
	}
	if f.Log.Verbose {
		cfg.Verbose = true
	}
}
