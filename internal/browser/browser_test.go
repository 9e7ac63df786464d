// internal/browser/browser_test.go
package browser

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

const listingHTML = `<html><body>
<ul id="files">
  <li class="item"><span class="name"> The.Thing.2011.1080p.mkv </span><input class="dl" value="magnet:1"><b class="size">12 GB</b></li>
  <li class="item"><span class="name">No.Size.2001.mkv</span><input class="dl" value="magnet:2"></li>
  <li class="item"><span class="name">No.Value.1999.mkv</span><input class="dl"><b class="size">1 GB</b></li>
</ul>
</body></html>`

func TestDefaultBrowserConfig(t *testing.T) {
	config := DefaultBrowserConfig()

	if !config.Headless {
		t.Error("Expected headless mode by default")
	}
	if !config.Stealth {
		t.Error("Expected stealth by default")
	}
	if config.ViewportWidth != 1920 || config.ViewportHeight != 1080 {
		t.Errorf("Expected 1920x1080 viewport, got %dx%d", config.ViewportWidth, config.ViewportHeight)
	}
	if config.NavigationTimeout <= 0 {
		t.Error("Expected a navigation timeout")
	}
}

func TestHandlesFromHTML(t *testing.T) {
	handles, err := HandlesFromHTML(listingHTML, "li.item")
	if err != nil {
		t.Fatalf("HandlesFromHTML failed: %v", err)
	}
	if len(handles) != 3 {
		t.Fatalf("Expected 3 handles, got %d", len(handles))
	}

	title, err := handles[0].Text(".name")
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if title != "The.Thing.2011.1080p.mkv" {
		t.Errorf("Expected trimmed title, got %q", title)
	}

	value, err := handles[0].Attr("input.dl", "value")
	if err != nil || value != "magnet:1" {
		t.Errorf("Attr = %q, %v", value, err)
	}

	if _, err := handles[1].Text(".size"); !errors.Is(err, ErrElementMissing) {
		t.Errorf("Expected ErrElementMissing for missing element, got %v", err)
	}
	if _, err := handles[2].Attr("input.dl", "value"); !errors.Is(err, ErrElementMissing) {
		t.Errorf("Expected ErrElementMissing for missing attribute, got %v", err)
	}
}

func TestHandleSelfSelector(t *testing.T) {
	handles, err := HandlesFromHTML(`<div><a class="x" href="/f">file</a></div>`, "a.x")
	if err != nil {
		t.Fatalf("HandlesFromHTML failed: %v", err)
	}
	text, err := handles[0].Text("")
	if err != nil || text != "file" {
		t.Errorf("Text(\"\") = %q, %v", text, err)
	}
	href, err := handles[0].Attr("", "href")
	if err != nil || href != "/f" {
		t.Errorf("Attr(\"\", href) = %q, %v", href, err)
	}
}

func TestHandlesFromHTMLNoMatches(t *testing.T) {
	handles, err := HandlesFromHTML(listingHTML, "tr.row")
	if err != nil {
		t.Fatalf("HandlesFromHTML failed: %v", err)
	}
	if len(handles) != 0 {
		t.Errorf("Expected no handles, got %d", len(handles))
	}
}

func TestPickUserAgent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	fixed := &BrowserConfig{UserAgent: "fixed-agent", UserAgents: []string{"a", "b"}}
	if got := pickUserAgent(fixed, rng); got != "fixed-agent" {
		t.Errorf("Expected fixed agent, got %q", got)
	}

	pool := &BrowserConfig{UserAgents: []string{"a", "b"}}
	for i := 0; i < 10; i++ {
		if got := pickUserAgent(pool, rng); got != "a" && got != "b" {
			t.Fatalf("Agent %q not from pool", got)
		}
	}

	if got := pickUserAgent(&BrowserConfig{}, rng); got == "" {
		t.Error("Expected a built-in agent")
	}
}

func TestLoginConfigEnabled(t *testing.T) {
	var nilLogin *LoginConfig
	if nilLogin.Enabled() {
		t.Error("nil login should be disabled")
	}
	if (&LoginConfig{}).Enabled() {
		t.Error("login without URL should be disabled")
	}
	if !(&LoginConfig{URL: "https://example.com/login"}).Enabled() {
		t.Error("login with URL should be enabled")
	}
}

func TestChromeClient_ScrollAndWait(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	config := DefaultBrowserConfig()
	config.SessionTimeout = 30 * time.Second
	client, err := NewChromeClient(config, nil)
	if err != nil {
		t.Skipf("Skipping browser test - Chrome may not be available: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	page := `data:text/html,<html><body><ul><li class="i">a</li><li class="i">b</li></ul></body></html>`
	if err := client.Navigate(ctx, page, "li.i"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	var count int
	if err := client.Evaluate(ctx, `document.querySelectorAll("li.i").length`, &count); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 items, got %d", count)
	}

	if err := client.ScrollToBottom(ctx); err != nil {
		t.Fatalf("ScrollToBottom failed: %v", err)
	}

	err = client.WaitUntil(ctx, `document.querySelectorAll("li.i").length > 2`, 300*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("Expected ErrWaitTimeout, got %v", err)
	}

	handles, err := client.QueryAll(ctx, "li.i")
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	if len(handles) != 2 {
		t.Errorf("Expected 2 handles, got %d", len(handles))
	}
}
