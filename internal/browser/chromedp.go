// internal/browser/chromedp.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/valpere/listingsync/internal/utils"
)

const scrollToBottomScript = `window.scrollTo(0, document.body.scrollHeight);`

// ChromeClient implements Surface using chromedp
type ChromeClient struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	config      *BrowserConfig
	stats       *BrowserStats
	logger      utils.Logger
}

// NewChromeClient starts a browser session.
func NewChromeClient(config *BrowserConfig, logger utils.Logger) (*ChromeClient, error) {
	if config == nil {
		config = DefaultBrowserConfig()
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	userAgent := pickUserAgent(config, rand.New(rand.NewSource(time.Now().UnixNano())))

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker environments
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
	)
	if !config.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}
	if config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(config.UserDataDir))
	}
	if config.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if config.Stealth {
		opts = append(opts, stealthOptions()...)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)
	if config.SessionTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(ctx, config.SessionTimeout)
		tabCancel := cancel
		ctx = timeoutCtx
		cancel = func() {
			timeoutCancel()
			tabCancel()
		}
	}

	client := &ChromeClient{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		config:      config,
		stats:       &BrowserStats{},
		logger:      logger.WithField("component", "browser"),
	}

	if err := client.initialize(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	client.logger.WithField("user_agent", userAgent).Debug("browser session started")
	return client, nil
}

// initialize starts the browser and applies session-wide settings
func (c *ChromeClient) initialize() error {
	tasks := []chromedp.Action{
		chromedp.EmulateViewport(int64(c.config.ViewportWidth), int64(c.config.ViewportHeight)),
	}
	if c.config.Stealth {
		tasks = append(tasks, injectStealth())
	}
	return chromedp.Run(c.ctx, tasks...)
}

// run executes actions on the session, aborting when either the session
// or ctx ends.
func (c *ChromeClient) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Login fills and submits a login form
func (c *ChromeClient) Login(ctx context.Context, login *LoginConfig) error {
	if !login.Enabled() {
		return nil
	}

	navCtx, cancel := c.navigationContext(ctx)
	defer cancel()

	tasks := []chromedp.Action{
		chromedp.Navigate(login.URL),
		chromedp.WaitVisible(login.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(login.UsernameSelector, login.Username, chromedp.ByQuery),
		chromedp.SendKeys(login.PasswordSelector, login.Password, chromedp.ByQuery),
		chromedp.Click(login.SubmitSelector, chromedp.ByQuery),
	}
	if login.SuccessSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(login.SuccessSelector, chromedp.ByQuery))
	} else {
		tasks = append(tasks, chromedp.WaitReady("body", chromedp.ByQuery))
	}

	if err := c.run(navCtx, tasks...); err != nil {
		c.stats.Errors++
		return fmt.Errorf("login failed: %w", err)
	}
	c.logger.WithField("url", login.URL).Info("logged in")
	return nil
}

// Navigate navigates to a URL and waits for the page to be ready
func (c *ChromeClient) Navigate(ctx context.Context, url, readySelector string) error {
	start := time.Now()

	navCtx, cancel := c.navigationContext(ctx)
	defer cancel()

	tasks := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if readySelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(readySelector, chromedp.ByQuery))
	}

	if err := c.run(navCtx, tasks...); err != nil {
		c.stats.Errors++
		return fmt.Errorf("navigation failed: %w", err)
	}

	loadTime := time.Since(start)
	c.stats.PagesLoaded++
	if c.stats.PagesLoaded == 1 {
		c.stats.AverageLoadTime = loadTime
	} else {
		c.stats.AverageLoadTime = (c.stats.AverageLoadTime + loadTime) / 2
	}
	c.logger.WithFields(map[string]interface{}{"url": url, "load_time": loadTime}).Debug("page loaded")
	return nil
}

func (c *ChromeClient) navigationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.NavigationTimeout > 0 {
		return context.WithTimeout(ctx, c.config.NavigationTimeout)
	}
	return context.WithCancel(ctx)
}

// Evaluate runs JavaScript code and decodes the result into res
func (c *ChromeClient) Evaluate(ctx context.Context, script string, res interface{}) error {
	if err := c.run(ctx, chromedp.Evaluate(script, res)); err != nil {
		c.stats.JavaScriptErrors++
		return fmt.Errorf("script execution failed: %w", err)
	}
	return nil
}

// QueryAll snapshots the rendered document and returns handles for every
// node matching selector
func (c *ChromeClient) QueryAll(ctx context.Context, selector string) ([]ItemHandle, error) {
	var html string
	if err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		c.stats.Errors++
		return nil, fmt.Errorf("failed to get HTML: %w", err)
	}
	return HandlesFromHTML(html, selector)
}

// ScrollToBottom scrolls the window to the end of the document
func (c *ChromeClient) ScrollToBottom(ctx context.Context) error {
	if err := c.run(ctx, chromedp.Evaluate(scrollToBottomScript, nil)); err != nil {
		c.stats.JavaScriptErrors++
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// WaitUntil polls predicate until it is truthy or timeout elapses
func (c *ChromeClient) WaitUntil(ctx context.Context, predicate string, timeout time.Duration) error {
	var ok bool
	err := c.run(ctx, chromedp.Poll(predicate, &ok, chromedp.WithPollingTimeout(timeout)))
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, chromedp.ErrPollingTimeout), errors.Is(err, context.DeadlineExceeded):
		c.stats.TimeoutsOccurred++
		return ErrWaitTimeout
	default:
		return fmt.Errorf("wait failed: %w", err)
	}
}

// GetStats returns browser statistics
func (c *ChromeClient) GetStats() BrowserStats {
	return *c.stats
}

// Close closes the browser
func (c *ChromeClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}

// Launcher opens browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Surface, error)
}

// ChromeLauncher launches ChromeClient sessions from a fixed config.
type ChromeLauncher struct {
	Config *BrowserConfig
	Logger utils.Logger
}

// Launch starts a new Chrome session.
func (l ChromeLauncher) Launch(ctx context.Context) (Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewChromeClient(l.Config, l.Logger)
}
