// internal/errors/service.go - Retry, circuit breaking and CLI error reporting
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/valpere/listingsync/internal/utils"
)

// Exit codes
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitConfig     = 2
	ExitNavigation = 3
	ExitExtraction = 4
	ExitStorage    = 5
	ExitAuth       = 8
)

// Service retries transient failures and turns errors into CLI output
type Service struct {
	retryConfig     RetryConfig
	breakerConfig   CircuitBreakerConfig
	messageHandler  *MessageHandler
	circuitBreakers map[string]*CircuitBreaker
	logger          utils.Logger
	sleep           func(ctx context.Context, d time.Duration) error
	mu              sync.RWMutex
}

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay" json:"base_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
}

// DefaultRetryConfig returns the retry settings used for storage calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     2 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      time.Minute,
	}
}

// MessageHandler converts technical errors to user-friendly messages
type MessageHandler struct {
	showTechnical bool
}

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	CircuitClosed CircuitBreakerState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while an operation's breaker is open.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// CircuitBreaker stops calling an operation that keeps failing. It only
// matters for long-running serve mode, where one run follows another.
type CircuitBreaker struct {
	name            string
	maxFailures     int
	resetTimeout    time.Duration
	state           CircuitBreakerState
	failures        int
	lastFailureTime time.Time
	nextAttemptTime time.Time
	mu              sync.RWMutex
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" json:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// DefaultCircuitBreakerConfig opens a breaker after five failed runs of an
// operation and probes again after five minutes.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 5 * time.Minute,
	}
}

// NewService creates a service with the default retry settings
func NewService() *Service {
	return NewServiceWithConfig(DefaultRetryConfig(), nil)
}

// NewServiceWithConfig creates a service with explicit retry settings
func NewServiceWithConfig(retry RetryConfig, logger utils.Logger) *Service {
	if retry.BackoffFactor < 1 {
		retry.BackoffFactor = 1
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Service{
		retryConfig:     retry,
		breakerConfig:   DefaultCircuitBreakerConfig(),
		messageHandler:  &MessageHandler{showTechnical: false},
		circuitBreakers: make(map[string]*CircuitBreaker),
		logger:          logger,
		sleep:           sleepContext,
	}
}

// WithVerbose enables technical error details
func (s *Service) WithVerbose(verbose bool) *Service {
	s.messageHandler.showTechnical = verbose
	return s
}

// ExecuteWithRetry runs operation until it succeeds, fails permanently or
// the retry budget is spent. The last error is returned unwrapped so its
// StructuredError code survives.
func (s *Service) ExecuteWithRetry(ctx context.Context, operation func() error, operationName string) error {
	breaker := s.getOrCreateCircuitBreaker(operationName)
	if !breaker.CanExecute() {
		return fmt.Errorf("%s: %w", operationName, ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			breaker.RecordSuccess()
			return nil
		}
		lastErr = err

		if !s.shouldRetry(err, attempt) {
			break
		}

		delay := s.calculateDelay(attempt)
		s.logger.WithFields(map[string]interface{}{
			"operation": operationName,
			"attempt":   attempt + 1,
			"delay":     delay.String(),
		}).WithError(err).Warn("retrying after transient failure")

		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}

	breaker.RecordFailure()
	if breaker.GetState() == CircuitOpen {
		s.logger.WithField("operation", operationName).Warn("circuit breaker opened")
	}
	return lastErr
}

// getOrCreateCircuitBreaker gets or creates a circuit breaker for an operation
func (s *Service) getOrCreateCircuitBreaker(operationName string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, exists := s.circuitBreakers[operationName]; exists {
		return cb
	}

	cb := &CircuitBreaker{
		name:         operationName,
		maxFailures:  s.breakerConfig.MaxFailures,
		resetTimeout: s.breakerConfig.ResetTimeout,
		state:        CircuitClosed,
	}
	s.circuitBreakers[operationName] = cb
	return cb
}

// ConfigureCircuitBreaker sets the breaker thresholds and drops existing
// breakers. A zero MaxFailures keeps the defaults.
func (s *Service) ConfigureCircuitBreaker(config CircuitBreakerConfig) {
	defaults := DefaultCircuitBreakerConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = defaults.ResetTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakerConfig = config
	s.circuitBreakers = make(map[string]*CircuitBreaker)
}

// shouldRetry determines if error is retryable
func (s *Service) shouldRetry(err error, attempt int) bool {
	if attempt >= s.retryConfig.MaxRetries {
		return false
	}
	return IsTransient(err)
}

// IsTransient reports whether err is worth retrying: timeouts, rate limits,
// server errors, or a StructuredError marked retryable.
func IsTransient(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}

	var se *utils.StructuredError
	if stderrors.As(err, &se) && se.Retryable {
		return true
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"connection refused", "connection reset", "database is locked",
		"temporary", "service unavailable", "too many requests",
	} {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}

// calculateDelay computes exponential backoff delay
func (s *Service) calculateDelay(attempt int) time.Duration {
	delay := float64(s.retryConfig.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.retryConfig.BackoffFactor
	}
	if s.retryConfig.MaxDelay > 0 && time.Duration(delay) > s.retryConfig.MaxDelay {
		return s.retryConfig.MaxDelay
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetUserFriendlyError converts technical errors to user-friendly messages
func (s *Service) GetUserFriendlyError(err error) (title, message string, suggestions []string) {
	if err == nil {
		return "", "", nil
	}

	if stderrors.Is(err, ErrCircuitOpen) {
		return "Storage Temporarily Disabled",
			"Recent storage calls kept failing, so this run was not attempted.",
			[]string{
				"Check the storage backend status",
				"In serve mode, reset it with POST /breakers/{operation}/reset",
			}
	}

	code, _ := utils.CodeOf(err)
	switch code {
	case utils.ErrCodeInvalidConfig:
		return "Configuration Error",
			"The configuration file is missing values or has invalid YAML.",
			[]string{
				"Run 'listingsync validate' to list the problems",
				"Check YAML indentation (use spaces, not tabs)",
				"Make sure referenced environment variables are set",
			}
	case utils.ErrCodeAuthFailed:
		return "Authorization Failed",
			"Could not obtain credentials for the storage backend.",
			[]string{
				"Check the service account key file or JSON",
				"Share the spreadsheet with the service account email",
			}
	case utils.ErrCodeNavigationFailed:
		return "Source Page Unreachable",
			"Could not load or log in to the listing page.",
			[]string{
				"Check that the URL opens in a browser",
				"Verify the ready selector still matches the page",
				"Check the login credentials if login is configured",
			}
	case utils.ErrCodeBrowserFailed, utils.ErrCodeExtractionFailed:
		return "Browser Error",
			"The browser session failed while loading or reading the list.",
			[]string{
				"Make sure Chrome or Chromium is installed",
				"Check that the item selector matches the list",
				"Try running with headless disabled to watch the page",
			}
	case utils.ErrCodeStorageFailed:
		if utils.SeverityOf(err) == utils.SeverityCritical {
			return "Stored Table Lost",
				"The stored table was cleared but the merged table could not be written.",
				[]string{
					"Restore the range from the spreadsheet's version history or a database backup",
					"Fix the storage problem and run again; the next run starts from the restored table",
				}
		}
		return "Storage Error",
			"Reading or writing the listing table failed. Nothing was written.",
			[]string{
				"Check the sheet id and range",
				"Verify the database or workbook is reachable",
			}
	case utils.ErrCodeContextCanceled:
		return "Interrupted",
			"The run was canceled before it finished. Nothing was written.",
			nil
	}

	return "Unexpected Error",
		"An unexpected error occurred during the run.",
		[]string{
			"Try running the command again",
			"Run with --verbose for technical details",
		}
}

// GetExitCode returns appropriate exit code for error
func (s *Service) GetExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	code, ok := utils.CodeOf(err)
	if !ok {
		return ExitGeneral
	}

	switch code {
	case utils.ErrCodeInvalidConfig:
		return ExitConfig
	case utils.ErrCodeNavigationFailed:
		return ExitNavigation
	case utils.ErrCodeBrowserFailed, utils.ErrCodeExtractionFailed:
		return ExitExtraction
	case utils.ErrCodeStorageFailed:
		return ExitStorage
	case utils.ErrCodeAuthFailed:
		return ExitAuth
	default:
		return ExitGeneral
	}
}

// FormatErrorForCLI formats error for command-line display
func (s *Service) FormatErrorForCLI(err error) string {
	title, message, suggestions := s.GetUserFriendlyError(err)

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n%s\n", title, message)

	if s.messageHandler.showTechnical {
		fmt.Fprintf(&b, "\nTechnical details: %s\n", err.Error())
	}

	if len(suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, suggestion := range suggestions {
			fmt.Fprintf(&b, "  - %s\n", suggestion)
		}
	}

	return b.String()
}

// CircuitBreaker methods

// CanExecute checks if circuit breaker allows execution
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Now().After(cb.nextAttemptTime) {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records successful execution
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = CircuitClosed
}

// RecordFailure records failed execution
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = time.Now()

	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = CircuitOpen
		cb.nextAttemptTime = time.Now().Add(cb.resetTimeout)
	}
}

// GetState returns current circuit breaker state
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns circuit breaker statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"name":              cb.name,
		"state":             cb.state.String(),
		"failures":          cb.failures,
		"max_failures":      cb.maxFailures,
		"last_failure_time": cb.lastFailureTime,
		"next_attempt_time": cb.nextAttemptTime,
		"reset_timeout":     cb.resetTimeout.String(),
	}
}

// GetCircuitBreakerStats returns statistics for all circuit breakers
func (s *Service) GetCircuitBreakerStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})
	for name, cb := range s.circuitBreakers {
		stats[name] = cb.GetStats()
	}
	return stats
}

// ResetCircuitBreaker manually resets a circuit breaker
func (s *Service) ResetCircuitBreaker(operationName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, exists := s.circuitBreakers[operationName]
	if !exists {
		return fmt.Errorf("circuit breaker not found for operation: %s", operationName)
	}

	cb.mu.Lock()
	cb.failures = 0
	cb.state = CircuitClosed
	cb.mu.Unlock()

	return nil
}
