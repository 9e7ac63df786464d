// internal/browser/types.go
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrElementMissing is returned by ItemHandle reads when the requested
	// sub-element or attribute does not exist.
	ErrElementMissing = errors.New("element missing")

	// ErrWaitTimeout is returned by WaitUntil when the predicate did not
	// become true within the timeout.
	ErrWaitTimeout = errors.New("wait timed out")
)

// BrowserConfig defines browser automation configuration
type BrowserConfig struct {
	Headless          bool          `yaml:"headless" json:"headless"`
	ExecPath          string        `yaml:"exec_path,omitempty" json:"exec_path,omitempty"`
	UserDataDir       string        `yaml:"user_data_dir,omitempty" json:"user_data_dir,omitempty"`
	SessionTimeout    time.Duration `yaml:"session_timeout" json:"session_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	ViewportWidth     int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height" json:"viewport_height"`
	UserAgent         string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	UserAgents        []string      `yaml:"user_agents,omitempty" json:"user_agents,omitempty"`
	DisableImages     bool          `yaml:"disable_images" json:"disable_images"`
	Stealth           bool          `yaml:"stealth" json:"stealth"`
}

// DefaultBrowserConfig returns default browser configuration
func DefaultBrowserConfig() *BrowserConfig {
	return &BrowserConfig{
		Headless:          true,
		SessionTimeout:    15 * time.Minute,
		NavigationTimeout: 60 * time.Second,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		DisableImages:     true,
		Stealth:           true,
	}
}

// LoginConfig describes an optional form login performed before the
// listing page is opened.
type LoginConfig struct {
	URL              string `yaml:"url" json:"url"`
	UsernameSelector string `yaml:"username_selector" json:"username_selector"`
	PasswordSelector string `yaml:"password_selector" json:"password_selector"`
	SubmitSelector   string `yaml:"submit_selector" json:"submit_selector"`
	SuccessSelector  string `yaml:"success_selector,omitempty" json:"success_selector,omitempty"`
	Username         string `yaml:"username" json:"-"`
	Password         string `yaml:"password" json:"-"`
}

// Enabled reports whether a login step is configured.
func (l *LoginConfig) Enabled() bool {
	return l != nil && l.URL != ""
}

// ItemHandle is one rendered list item. Reads are relative to the item;
// an empty selector addresses the item itself.
type ItemHandle interface {
	Text(selector string) (string, error)
	Attr(selector, name string) (string, error)
}

// Surface is the page automation capability set the sync pipeline drives.
// One Surface is one browser session with one page.
type Surface interface {
	// Login performs a form login.
	Login(ctx context.Context, login *LoginConfig) error

	// Navigate opens url and waits until readySelector is visible (or the
	// body is ready when readySelector is empty).
	Navigate(ctx context.Context, url, readySelector string) error

	// Evaluate runs script in the page and decodes its result into res.
	Evaluate(ctx context.Context, script string, res interface{}) error

	// QueryAll snapshots the page and returns a handle per matching node.
	QueryAll(ctx context.Context, selector string) ([]ItemHandle, error)

	// ScrollToBottom scrolls the window to the end of the document.
	ScrollToBottom(ctx context.Context) error

	// WaitUntil polls the JavaScript predicate until it is truthy. It
	// returns ErrWaitTimeout when timeout elapses first.
	WaitUntil(ctx context.Context, predicate string, timeout time.Duration) error

	// Close releases the browser session.
	Close() error
}

// StatsReporter is implemented by surfaces that count their activity.
type StatsReporter interface {
	GetStats() BrowserStats
}

// BrowserStats contains browser automation statistics
type BrowserStats struct {
	PagesLoaded      int           `json:"pages_loaded"`
	AverageLoadTime  time.Duration `json:"average_load_time"`
	Errors           int           `json:"errors"`
	JavaScriptErrors int           `json:"javascript_errors"`
	TimeoutsOccurred int           `json:"timeouts_occurred"`
}
