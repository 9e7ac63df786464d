// cmd/listingsync/main_test.go
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valpere/listingsync/internal/browser"
	errs "github.com/valpere/listingsync/internal/errors"
	lsync "github.com/valpere/listingsync/internal/sync"
)

const validConfig = `
source:
  url: "https://example.com/files"
  ready_selector: "ul.files li"
selectors:
  item: "ul.files li"
  title: ".file-title"
  locator: "input.download-link"
  locator_attribute: "value"
  size: ".badge"
storage:
  type: sqlite
  sheet_id: listings
  dsn: data/listings.db
`

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "listingsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestCLIVersion(t *testing.T) {
	version = "test-version"
	buildTime = "2025-06-23"
	gitCommit = "abc123"

	code, out, _ := runCLI(t, "version")
	if code != errs.ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	for _, want := range []string{"test-version", "2025-06-23", "abc123"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output should contain %q, got: %s", want, out)
		}
	}
}

func TestCLIHelp(t *testing.T) {
	code, out, _ := runCLI(t, "--help")
	if code != errs.ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	for _, cmd := range []string{"run", "validate", "template", "serve", "version"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help output should contain command %q, got: %s", cmd, out)
		}
	}
}

func TestCLITemplate(t *testing.T) {
	code, out, _ := runCLI(t, "template", "excel")
	if code != errs.ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "type: excel") {
		t.Errorf("expected excel template, got: %s", out)
	}

	target := filepath.Join(t.TempDir(), "listingsync.yaml")
	if code, _, _ := runCLI(t, "template", "-o", target); code != errs.ExitOK {
		t.Fatalf("expected exit 0 writing template, got %d", code)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("template not written: %v", err)
	}
	if !strings.Contains(string(data), "type: sheets") {
		t.Error("default template should use sheets storage")
	}
	if code, _, _ := runCLI(t, "template", "-o", target); code == errs.ExitOK {
		t.Error("expected refusal to overwrite an existing file")
	}

	if code, _, _ := runCLI(t, "template", "csv"); code != errs.ExitGeneral {
		t.Errorf("expected exit %d for unknown template, got %d", errs.ExitGeneral, code)
	}
}

func TestCLIValidate(t *testing.T) {
	path := writeConfig(t, validConfig)
	code, out, _ := runCLI(t, "validate", "-c", path)
	if code != errs.ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "is valid") || !strings.Contains(out, "storage: sqlite") {
		t.Errorf("unexpected output: %s", out)
	}

	invalid := writeConfig(t, strings.Replace(validConfig, "dsn: data/listings.db", "admit_cap: -1", 1))
	code, out, stderr := runCLI(t, "validate", "-c", invalid)
	if code != errs.ExitConfig {
		t.Fatalf("expected exit %d, got %d", errs.ExitConfig, code)
	}
	if !strings.Contains(out, "storage.admit_cap") {
		t.Errorf("expected field errors in output, got: %s", out)
	}
	if !strings.Contains(stderr, "Configuration Error") {
		t.Errorf("expected formatted error, got: %s", stderr)
	}
}

func TestCLIRunMissingConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	code, _, stderr := runCLI(t, "run", "-c", missing)
	if code != errs.ExitConfig {
		t.Errorf("expected exit %d, got %d", errs.ExitConfig, code)
	}
	if strings.Contains(stderr, "Technical details") {
		t.Error("technical details should need --verbose")
	}

	_, _, stderr = runCLI(t, "run", "-v", "-c", missing)
	if !strings.Contains(stderr, "configuration file not found") {
		t.Errorf("verbose output should include the cause, got: %s", stderr)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &lsync.Summary{
		RunID:     "run-1",
		Rendered:  16,
		Extracted: 15,
		Skipped:   1,
		Admitted:  10,
		Dropped:   2,
		Written:   60,
		Browser:   &browser.BrowserStats{PagesLoaded: 1, Errors: 1, JavaScriptErrors: 2, TimeoutsOccurred: 5},
	})

	out := buf.String()
	for _, want := range []string{"sync run-1", "16 (15 extracted, 1 skipped)", "written:   60", "1 pages, 3 errors, 5 wait timeouts"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary should contain %q, got:\n%s", want, out)
		}
	}
}
