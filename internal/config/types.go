// internal/config/types.go

// Package config defines the listingsync configuration file: where the
// listing lives, how to read it, and where the table is stored.
package config

import (
	"time"

	"github.com/valpere/listingsync/internal/browser"
	errs "github.com/valpere/listingsync/internal/errors"
	"github.com/valpere/listingsync/internal/extract"
	"github.com/valpere/listingsync/internal/monitoring"
	"github.com/valpere/listingsync/internal/reconcile"
	"github.com/valpere/listingsync/internal/sanitizer"
	"github.com/valpere/listingsync/internal/scroll"
	"github.com/valpere/listingsync/internal/storage"
)

// Config is the root of the configuration file.
type Config struct {
	// Timeout bounds a whole sync run; zero means no limit.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	Source     SourceConfig         `yaml:"source" json:"source"`
	Selectors  extract.Selectors    `yaml:"selectors" json:"selectors"`
	Scroll     scroll.Config        `yaml:"scroll" json:"scroll"`
	Vocabulary sanitizer.Vocabulary `yaml:"vocabulary" json:"vocabulary"`
	Storage    StorageConfig        `yaml:"storage" json:"storage"`
	Retry      errs.RetryConfig     `yaml:"retry" json:"retry"`

	CircuitBreaker errs.CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`

	Browser browser.BrowserConfig    `yaml:"browser" json:"browser"`
	Logging LoggingConfig            `yaml:"logging" json:"logging"`
	Metrics monitoring.MetricsConfig `yaml:"metrics" json:"metrics"`
	Server  ServerConfig             `yaml:"server" json:"server"`
}

// SourceConfig defines the listing page.
type SourceConfig struct {
	URL string `yaml:"url" json:"url"`

	// ReadySelector must be visible before scrolling starts.
	ReadySelector string `yaml:"ready_selector" json:"ready_selector"`

	Login *browser.LoginConfig `yaml:"login,omitempty" json:"login,omitempty"`
}

// StorageConfig adds the merge policy to the backend settings.
type StorageConfig struct {
	storage.Config `yaml:",inline"`

	// AdmitCap limits how many new records one run may add.
	AdmitCap int `yaml:"admit_cap" json:"admit_cap"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`

	// Format is "auto", "json" or "console"; auto picks console on a terminal.
	Format string `yaml:"format" json:"format"`
}

// ServerConfig controls serve mode.
type ServerConfig struct {
	Address string `yaml:"address" json:"address"`

	// Interval between scheduled runs; zero disables the schedule and runs
	// only happen through POST /sync.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// RunOnStart triggers a run as soon as the server starts.
	RunOnStart bool `yaml:"run_on_start" json:"run_on_start"`

	// WatchConfig reloads the configuration file when it changes.
	WatchConfig bool `yaml:"watch_config" json:"watch_config"`

	// APIKey, when set, is required as a Bearer token on POST /sync.
	APIKey string `yaml:"api_key" json:"-"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Timeout:    30 * time.Minute,
		Scroll:     scroll.DefaultConfig(),
		Vocabulary: sanitizer.DefaultVocabulary(),
		Storage: StorageConfig{
			Config: storage.Config{
				Type:  storage.TypeSheets,
				Range: storage.DefaultRange,
			},
			AdmitCap: reconcile.DefaultAdmitCap,
		},
		Retry:          errs.DefaultRetryConfig(),
		CircuitBreaker: errs.DefaultCircuitBreakerConfig(),
		Browser:        *browser.DefaultBrowserConfig(),
		Logging:        LoggingConfig{Level: "info", Format: "auto"},
		Metrics:        monitoring.MetricsConfig{Namespace: "listingsync"},
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
	}
}
