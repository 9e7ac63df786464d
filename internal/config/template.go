// internal/config/template.go
package config

import (
	"fmt"
	"strings"
)

const sheetsTemplate = `# listingsync configuration
#
# Values of the form ${VAR} or ${VAR:-default} are read from the environment.
# A .env file in the working directory or next to this file is loaded first.

# Upper bound for one sync run.
timeout: 30m

source:
  url: ${LISTING_URL}
  # Visible once the list has rendered its first items.
  ready_selector: "ul.files li"
  # Optional form login performed before the listing is opened.
  # login:
  #   url: https://example.com/login
  #   username_selector: "#username"
  #   password_selector: "#password"
  #   submit_selector: "button[type=submit]"
  #   success_selector: ".account"
  #   username: ${LISTING_USER}
  #   password: ${LISTING_PASSWORD}

selectors:
  item: "ul.files li"
  title: ".file-title"
  locator: "input.download-link"
  locator_attribute: "value"
  size: ".badge"

scroll:
  # Consecutive unchanged item counts before the list counts as fully loaded.
  stability_threshold: 5
  wait_timeout: 3s
  interval: 0s
  # 0 means no cap.
  max_cycles: 0

vocabulary:
  quality_tags: [1080p, 720p, 2160p]
  keyword_tags: [BluRay, REMUX, UNTOUCHED, HDR10, IMAX, Hallowed, REMASTERED]
  extensions: [mkv, mp4, mov, avi, wmv, flv, webm]

storage:
  # sheets, excel, sqlite, postgres or mysql
  type: %s
%s  # New records admitted per run.
  admit_cap: 10

retry:
  max_retries: 3
  base_delay: 2s
  backoff_factor: 2
  max_delay: 1m

# Storage calls stop after max_failures failed runs until reset_timeout
# passes or POST /breakers/{operation}/reset is called in serve mode.
circuit_breaker:
  max_failures: 5
  reset_timeout: 5m

browser:
  headless: true
  navigation_timeout: 60s
  session_timeout: 15m
  disable_images: true
  stealth: true

logging:
  level: info
  # auto, json or console
  format: auto

metrics:
  enabled: false
  # pushgateway_url: http://localhost:9091
  # push_job: listingsync

server:
  address: ":8080"
  interval: 6h
  run_on_start: false
  watch_config: true
  # Bearer token required by POST /sync.
  # api_key: ${LISTINGSYNC_API_KEY}
`

var storageTemplates = map[string]string{
	"sheets": `  sheet_id: ${SHEET_ID}
  range: "Sheet1!A:G"
  # Service account key; credentials_json takes precedence.
  credentials_file: ${GOOGLE_APPLICATION_CREDENTIALS:-credentials.json}
  # credentials_json: ${GOOGLE_CREDENTIALS_JSON}
`,
	"excel": `  # Workbook path
  sheet_id: ${WORKBOOK:-listings.xlsx}
  range: "Listings!A:G"
`,
	"sqlite": `  sheet_id: listings
  range: "Sheet1!A:G"
  dsn: ${DATABASE_PATH:-data/listings.db}
  table: listing_rows
`,
	"postgres": `  sheet_id: listings
  range: "Sheet1!A:G"
  dsn: ${DATABASE_URL}
  table: listing_rows
`,
	"mysql": `  sheet_id: listings
  range: "Sheet1!A:G"
  dsn: ${DATABASE_DSN}
  table: listing_rows
`,
}

// TemplateTypes lists the storage types GenerateTemplate accepts.
func TemplateTypes() []string {
	return []string{"sheets", "excel", "sqlite", "postgres", "mysql"}
}

// GenerateTemplate returns a commented configuration file for the given
// storage type.
func GenerateTemplate(storageType string) (string, error) {
	storageType = strings.ToLower(storageType)
	if storageType == "" {
		storageType = "sheets"
	}
	section, ok := storageTemplates[storageType]
	if !ok {
		return "", fmt.Errorf("unknown template %q (available: %s)", storageType, strings.Join(TemplateTypes(), ", "))
	}
	return fmt.Sprintf(sheetsTemplate, storageType, section), nil
}
