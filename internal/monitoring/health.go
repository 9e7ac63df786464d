// internal/monitoring/health.go
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name      string                                      `json:"name"`
	Status    HealthStatus                                `json:"status"`
	Message   string                                      `json:"message,omitempty"`
	Error     string                                      `json:"error,omitempty"`
	LastCheck time.Time                                   `json:"last_check"`
	Duration  time.Duration                               `json:"duration"`
	CheckFunc func(ctx context.Context) HealthCheckResult `json:"-"`
	Timeout   time.Duration                               `json:"-"`
	Critical  bool                                        `json:"critical"`
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status  HealthStatus
	Message string
	Error   error
}

// SystemHealth represents overall system health information
type SystemHealth struct {
	Status         HealthStatus  `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
	Version        string        `json:"version,omitempty"`
	Uptime         string        `json:"uptime"`
	GoroutineCount int           `json:"goroutine_count"`
	Checks         []HealthCheck `json:"checks,omitempty"`
}

// HealthManager runs registered checks on demand
type HealthManager struct {
	checks         map[string]*HealthCheck
	mu             sync.Mutex
	version        string
	started        time.Time
	defaultTimeout time.Duration
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checks:         make(map[string]*HealthCheck),
		version:        version,
		started:        time.Now(),
		defaultTimeout: 5 * time.Second,
	}
}

// RegisterCheck registers a new health check
func (hm *HealthManager) RegisterCheck(check *HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if check.Timeout == 0 {
		check.Timeout = hm.defaultTimeout
	}
	check.Status = HealthStatusUnknown
	hm.checks[check.Name] = check
}

// CheckHealth runs every check and aggregates the result. An unhealthy
// critical check makes the whole system unhealthy.
func (hm *HealthManager) CheckHealth(ctx context.Context) SystemHealth {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	health := SystemHealth{
		Status:         HealthStatusHealthy,
		Timestamp:      time.Now(),
		Version:        hm.version,
		Uptime:         time.Since(hm.started).Round(time.Second).String(),
		GoroutineCount: runtime.NumGoroutine(),
	}

	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := hm.checks[name]
		hm.runCheck(ctx, check)
		health.Checks = append(health.Checks, *check)

		switch check.Status {
		case HealthStatusHealthy:
		case HealthStatusUnhealthy:
			if check.Critical {
				health.Status = HealthStatusUnhealthy
			} else if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		default:
			if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		}
	}

	return health
}

// runCheck runs a single health check
func (hm *HealthManager) runCheck(ctx context.Context, check *HealthCheck) {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	result := HealthCheckResult{Status: HealthStatusUnknown, Message: "No check function defined"}
	if check.CheckFunc != nil {
		result = check.CheckFunc(checkCtx)
	}

	check.LastCheck = start
	check.Duration = time.Since(start)
	check.Status = result.Status
	check.Message = result.Message
	check.Error = ""
	if result.Error != nil {
		check.Error = result.Error.Error()
	}
}

// HealthHandler returns the HTTP handler for the health endpoint
func (hm *HealthManager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.CheckHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(health)
	}
}

// LastRunHealthCheck reports degraded while no run has finished yet and
// unhealthy when the last successful run is older than maxAge.
func LastRunHealthCheck(lastSuccess func() time.Time, maxAge time.Duration) *HealthCheck {
	return &HealthCheck{
		Name: "last_run",
		CheckFunc: func(ctx context.Context) HealthCheckResult {
			last := lastSuccess()
			if last.IsZero() {
				return HealthCheckResult{Status: HealthStatusDegraded, Message: "No successful run yet"}
			}
			age := time.Since(last)
			if maxAge > 0 && age > maxAge {
				return HealthCheckResult{
					Status:  HealthStatusUnhealthy,
					Message: fmt.Sprintf("Last successful run %s ago", age.Round(time.Second)),
				}
			}
			return HealthCheckResult{Status: HealthStatusHealthy, Message: fmt.Sprintf("Last successful run %s ago", age.Round(time.Second))}
		},
	}
}

// GoroutineHealthCheck creates a goroutine count health check
func GoroutineHealthCheck(maxGoroutines int) *HealthCheck {
	return &HealthCheck{
		Name: "goroutines",
		CheckFunc: func(ctx context.Context) HealthCheckResult {
			count := runtime.NumGoroutine()
			if count > maxGoroutines {
				return HealthCheckResult{
					Status:  HealthStatusDegraded,
					Message: fmt.Sprintf("High goroutine count: %d", count),
				}
			}
			return HealthCheckResult{Status: HealthStatusHealthy, Message: fmt.Sprintf("Goroutine count: %d", count)}
		},
	}
}
