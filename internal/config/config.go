package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/cyberbuddy/internal/dom"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "cyberbuddy"

	// DefaultBackendURL is where the classification backend listens when
	// started locally.
	DefaultBackendURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds one backend call.
	DefaultTimeout = 30 * time.Second

	// DefaultRequestTTL bounds how long a requester waits for the background
	// context to reply.
	DefaultRequestTTL = 30 * time.Second

	// DefaultDebounce is the quiet period before re-running link discovery.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultScanLimit is the number of concurrent scans in batch mode.
	DefaultScanLimit = 4

	// DefaultUserAgent identifies CyberBuddy to the backend.
	DefaultUserAgent = "CyberBuddy-Extension/1.0"

	// DefaultMaxBodySize caps backend response bodies.
	DefaultMaxBodySize = 1 << 20

	// DefaultMaxPageSize caps fetched documents for observe.
	DefaultMaxPageSize = 10 << 20

	// DefaultResultSelector matches search result anchors.
	DefaultResultSelector = "div.g a"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Report formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// DefaultSearchDomains are hosts whose own links are never scanned.
func DefaultSearchDomains() []string { return []string{"google.com"} }

// DefaultSkipHosts are pages the guard does not scan.
func DefaultSkipHosts() []string { return []string{"localhost", "google.com"} }

// Config holds all configuration options for CyberBuddy. It is built once
// from defaults, the config file and flags, then passed down explicitly.
type Config struct {
	// BackendURL is the base URL of the classification backend.
	BackendURL string

	// Timeout bounds each backend HTTP call.
	Timeout time.Duration

	// RequestTTL bounds each message-bus request.
	RequestTTL time.Duration

	// UserAgent is sent with every backend request.
	UserAgent string

	// MaxBodySize caps backend response bodies in bytes.
	MaxBodySize int64

	// MaxPageSize caps documents fetched by observe, in bytes.
	MaxPageSize int64

	// ResultSelector picks candidate anchors on a page.
	ResultSelector string

	// SearchDomains are excluded from link scanning, subdomains included.
	SearchDomains []string

	// SkipHosts are never scanned by the page guard.
	SkipHosts []string

	// Debounce is the mutation quiet period before re-discovery.
	Debounce time.Duration

	// ScanLimit is the batch-mode concurrency.
	ScanLimit int

	// Store selects the state store driver: "sqlite" or "memory".
	Store string

	// DataDir holds the SQLite state database.
	// Defaults to the XDG data directory (~/.local/share/cyberbuddy on Linux).
	DataDir string

	// Verbose enables debug logging.
	Verbose bool

	// LogFormat is "text" or "json".
	LogFormat string

	// Format is the report format: "text", "json" or "markdown".
	Format string

	// Color enables ANSI colors in text reports.
	Color bool

	// ReportFile receives the report instead of stdout when set.
	ReportFile string

	// ConfigFilePath is the explicit config file path, if any.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		BackendURL:     DefaultBackendURL,
		Timeout:        DefaultTimeout,
		RequestTTL:     DefaultRequestTTL,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		MaxPageSize:    DefaultMaxPageSize,
		ResultSelector: DefaultResultSelector,
		SearchDomains:  DefaultSearchDomains(),
		SkipHosts:      DefaultSkipHosts(),
		Debounce:       DefaultDebounce,
		ScanLimit:      DefaultScanLimit,
		Store:          StoreSQLite,
		DataDir:        XDGDataDir(),
		LogFormat:      FormatText,
		Format:         FormatText,
		Color:          true,
	}
}

// XDGDataDir returns the XDG data directory for CyberBuddy.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for CyberBuddy.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate returns the first invalid setting found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBackendURL, c.BackendURL)
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RequestTTL <= 0 {
		return ErrInvalidRequestTTL
	}
	if c.Debounce < 0 {
		return ErrInvalidDebounce
	}
	if c.ScanLimit <= 0 {
		return ErrInvalidScanLimit
	}
	if c.MaxBodySize < 0 || c.MaxPageSize < 0 {
		return ErrInvalidMaxBodySize
	}
	if _, err := dom.Compile(c.ResultSelector); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSelector, err)
	}
	switch c.Store {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store)
	}
	switch c.Format {
	case FormatText, FormatJSON, FormatMarkdown:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, c.Format)
	}
	if c.LogFormat != FormatText && c.LogFormat != FormatJSON {
		return fmt.Errorf("%w: log format %q", ErrUnknownFormat, c.LogFormat)
	}
	return nil
}
