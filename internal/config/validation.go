// internal/config/validation.go - Validation with detailed error messages
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/valpere/listingsync/internal/utils"
)

// ValidationError represents a detailed validation error
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`
}

func (r *ValidationResult) addError(field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: message})
}

func (r *ValidationResult) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate returns an INVALID_CONFIG error listing every problem found
func (c *Config) Validate() error {
	result := c.ValidateWithDetails()
	if result.Valid {
		return nil
	}
	return utils.NewError(utils.ErrCodeInvalidConfig, formatValidationErrors(result)).
		WithContext("errors", len(result.Errors)).
		Build()
}

// ValidateWithDetails provides detailed validation results
func (c *Config) ValidateWithDetails() *ValidationResult {
	result := &ValidationResult{
		Errors:   make([]ValidationError, 0),
		Warnings: make([]string, 0),
	}

	c.validateSource(result)
	c.validateSelectors(result)
	c.validateScroll(result)
	c.validateVocabulary(result)
	c.validateStorage(result)
	c.validateRuntime(result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (c *Config) validateSource(result *ValidationResult) {
	if c.Source.URL == "" {
		result.addError("source.url", "", "source URL is required")
	} else if err := validateURL(c.Source.URL, "http", "https", "file"); err != nil {
		result.addError("source.url", c.Source.URL, err.Error())
	}

	if c.Source.ReadySelector == "" {
		result.addWarning("source.ready_selector is empty; scrolling starts once the body is ready")
	}

	login := c.Source.Login
	if !login.Enabled() {
		return
	}
	if err := validateURL(login.URL, "http", "https"); err != nil {
		result.addError("source.login.url", login.URL, err.Error())
	}
	for _, required := range []struct{ field, value string }{
		{"source.login.username_selector", login.UsernameSelector},
		{"source.login.password_selector", login.PasswordSelector},
		{"source.login.submit_selector", login.SubmitSelector},
	} {
		if required.value == "" {
			result.addError(required.field, "", "required when login is configured")
		}
	}
	if login.Username == "" || login.Password == "" {
		result.addError("source.login", "", "username and password are required; set them through ${VAR} references")
	}
}

func (c *Config) validateSelectors(result *ValidationResult) {
	if err := c.Selectors.Validate(); err != nil {
		result.addError("selectors", "", err.Error())
	}
}

func (c *Config) validateScroll(result *ValidationResult) {
	if c.Scroll.StabilityThreshold < 1 {
		result.addError("scroll.stability_threshold", fmt.Sprint(c.Scroll.StabilityThreshold), "must be at least 1")
	}
	if c.Scroll.WaitTimeout <= 0 {
		result.addError("scroll.wait_timeout", c.Scroll.WaitTimeout.String(), "must be positive")
	}
	if c.Scroll.Interval < 0 {
		result.addError("scroll.interval", c.Scroll.Interval.String(), "cannot be negative")
	}
	if c.Scroll.MaxCycles < 0 {
		result.addError("scroll.max_cycles", fmt.Sprint(c.Scroll.MaxCycles), "cannot be negative")
	}
	if c.Scroll.MaxCycles > 0 && c.Scroll.MaxCycles <= c.Scroll.StabilityThreshold {
		result.addWarning("scroll.max_cycles (%d) does not exceed the stability threshold; the list can never settle", c.Scroll.MaxCycles)
	}
}

func (c *Config) validateVocabulary(result *ValidationResult) {
	if len(c.Vocabulary.QualityTags) == 0 {
		result.addWarning("vocabulary.quality_tags is empty; quality will always be blank")
	}
	if len(c.Vocabulary.Extensions) == 0 {
		result.addWarning("vocabulary.extensions is empty; file extensions stay in titles")
	}
}

func (c *Config) validateStorage(result *ValidationResult) {
	if err := c.Storage.Config.Validate(); err != nil {
		result.addError("storage", c.Storage.Type, err.Error())
	}
	if c.Storage.AdmitCap < 0 {
		result.addError("storage.admit_cap", fmt.Sprint(c.Storage.AdmitCap), "cannot be negative")
	}
}

func (c *Config) validateRuntime(result *ValidationResult) {
	if c.Timeout < 0 {
		result.addError("timeout", c.Timeout.String(), "cannot be negative")
	}
	if c.Retry.MaxRetries < 0 {
		result.addError("retry.max_retries", fmt.Sprint(c.Retry.MaxRetries), "cannot be negative")
	}
	if c.CircuitBreaker.MaxFailures < 0 {
		result.addError("circuit_breaker.max_failures", fmt.Sprint(c.CircuitBreaker.MaxFailures), "cannot be negative")
	}
	if _, err := utils.ParseLogLevel(c.Logging.Level); err != nil {
		result.addError("logging.level", c.Logging.Level, err.Error())
	}
	switch c.Logging.Format {
	case "auto", "json", "console":
	default:
		result.addError("logging.format", c.Logging.Format, "must be auto, json or console")
	}
	if c.Metrics.PushgatewayURL != "" {
		if err := validateURL(c.Metrics.PushgatewayURL, "http", "https"); err != nil {
			result.addError("metrics.pushgateway_url", c.Metrics.PushgatewayURL, err.Error())
		}
	}
	if c.Server.Interval < 0 {
		result.addError("server.interval", c.Server.Interval.String(), "cannot be negative")
	}
	if c.Timeout > 0 && c.Server.Interval > 0 && c.Server.Interval < c.Timeout {
		result.addWarning("server.interval (%s) is shorter than the run timeout (%s); ticks are skipped while a run is in progress", c.Server.Interval, c.Timeout)
	}
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			if scheme != "file" && u.Host == "" {
				return fmt.Errorf("URL has no host")
			}
			return nil
		}
	}
	return fmt.Errorf("URL scheme must be one of %s", strings.Join(schemes, ", "))
}

// formatValidationErrors creates a comprehensive error message
func formatValidationErrors(result *ValidationResult) string {
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for i, err := range result.Errors {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, err.Message)
		if err.Field != "" {
			fmt.Fprintf(&b, " (field: %s)", err.Field)
		}
		if err.Value != "" {
			fmt.Fprintf(&b, " (value: %s)", err.Value)
		}
	}
	return b.String()
}
