// internal/server/server.go

// Package server runs syncs on a schedule and exposes their state over
// HTTP. At most one sync runs at a time.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/valpere/listingsync/internal/config"
	"github.com/valpere/listingsync/internal/monitoring"
	lsync "github.com/valpere/listingsync/internal/sync"
	"github.com/valpere/listingsync/internal/utils"
)

// ErrRunInProgress is returned by Trigger while a sync is running.
var ErrRunInProgress = errors.New("a sync is already running")

// Runner performs one sync.
type Runner interface {
	Run(ctx context.Context) (*lsync.Summary, error)
}

// breakerRunner is implemented by runners whose storage calls sit behind
// circuit breakers.
type breakerRunner interface {
	CircuitBreakerStats() map[string]interface{}
	ResetCircuitBreaker(operation string) error
}

// RunStatus describes the most recent finished run.
type RunStatus struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Trigger    string         `json:"trigger"`
	Summary    *lsync.Summary `json:"summary,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
}

// Status is the body of GET /status.
type Status struct {
	Running     bool       `json:"running"`
	Runs        int        `json:"runs"`
	LastRun     *RunStatus `json:"last_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`

	Breakers map[string]interface{} `json:"breakers,omitempty"`
	Metrics  map[string]float64     `json:"metrics,omitempty"`
}

// Server schedules runs and serves the HTTP API.
type Server struct {
	config  config.ServerConfig
	metrics *monitoring.MetricsManager
	health  *monitoring.HealthManager
	logger  utils.Logger
	router  *mux.Router

	mu          sync.Mutex
	runner      Runner
	running     bool
	runs        int
	lastRun     *RunStatus
	lastSuccess time.Time
	nextRun     time.Time
	inflight    sync.WaitGroup

	// baseCtx parents triggered runs so shutdown can cancel them.
	baseCtx    context.Context
	cancelRuns context.CancelFunc
}

// New creates a server. metrics may be nil, in which case /metrics is not
// routed.
func New(cfg config.ServerConfig, runner Runner, metrics *monitoring.MetricsManager, logger utils.Logger, version string) *Server {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		runner:     runner,
		metrics:    metrics,
		health:     monitoring.NewHealthManager(version),
		logger:     logger.WithField("component", "server"),
		baseCtx:    ctx,
		cancelRuns: cancel,
	}

	if cfg.Interval > 0 {
		s.health.RegisterCheck(monitoring.LastRunHealthCheck(s.LastSuccess, 2*cfg.Interval))
	}
	s.health.RegisterCheck(monitoring.GoroutineHealthCheck(1000))

	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.MetricsHandler()).Methods(http.MethodGet)
	}

	r.Handle("/sync", s.protect(http.HandlerFunc(s.syncHandler))).Methods(http.MethodPost)
	r.Handle("/breakers/{operation}/reset", s.protect(http.HandlerFunc(s.resetBreakerHandler))).Methods(http.MethodPost)

	return r
}

// protect wraps a mutating endpoint with rate limiting and, when an API
// key is configured, bearer authentication.
func (s *Server) protect(next http.Handler) http.Handler {
	next = rateLimitMiddleware(next)
	if s.config.APIKey != "" {
		next = authMiddleware(s.config.APIKey, next)
	}
	return next
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetRunner replaces the runner used by later runs; a run in progress
// keeps the runner it started with.
func (s *Server) SetRunner(runner Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = runner
}

// LastSuccess returns when the last successful run finished.
func (s *Server) LastSuccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccess
}

// Status returns a snapshot of the run state, the storage circuit
// breakers and the current metric values.
func (s *Server) Status() Status {
	status := s.runState()

	if br, ok := s.currentRunner().(breakerRunner); ok {
		if breakers := br.CircuitBreakerStats(); len(breakers) > 0 {
			status.Breakers = breakers
		}
	}
	if s.metrics != nil {
		values, err := s.metrics.GetMetrics()
		if err != nil {
			s.logger.WithError(err).Warn("failed to gather metrics")
		} else {
			status.Metrics = values
		}
	}
	return status
}

func (s *Server) currentRunner() Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner
}

func (s *Server) runState() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Running: s.running, Runs: s.runs}
	if s.lastRun != nil {
		last := *s.lastRun
		status.LastRun = &last
	}
	if !s.lastSuccess.IsZero() {
		t := s.lastSuccess
		status.LastSuccess = &t
	}
	if !s.nextRun.IsZero() {
		t := s.nextRun
		status.NextRun = &t
	}
	return status
}

// Trigger starts a run in the background. It returns ErrRunInProgress
// instead of queueing when a run is already active.
func (s *Server) Trigger(source string) error {
	runner, err := s.begin()
	if err != nil {
		return err
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.execute(s.baseCtx, runner, source)
	}()
	return nil
}

// RunNow runs synchronously, used for the scheduled ticks.
func (s *Server) RunNow(ctx context.Context, source string) error {
	runner, err := s.begin()
	if err != nil {
		return err
	}
	s.inflight.Add(1)
	defer s.inflight.Done()
	s.execute(ctx, runner, source)
	return nil
}

func (s *Server) begin() (Runner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrRunInProgress
	}
	if s.runner == nil {
		return nil, errors.New("no runner configured")
	}
	s.running = true
	return s.runner, nil
}

func (s *Server) execute(ctx context.Context, runner Runner, source string) {
	started := time.Now()
	s.logger.WithField("trigger", source).Info("starting sync")

	summary, err := runner.Run(ctx)

	status := &RunStatus{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Trigger:    source,
		Summary:    summary,
	}
	if err != nil {
		status.Error = err.Error()
		if code, ok := utils.CodeOf(err); ok {
			status.ErrorCode = string(code)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.runs++
	s.lastRun = status
	if err == nil {
		s.lastSuccess = status.FinishedAt
	}
}

// Start serves HTTP and runs the schedule until ctx is canceled, then
// shuts down gracefully and waits for a run in progress.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	httpServer := &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.config.Address).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		s.schedule(ctx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}

	stop()
	s.cancelRuns()
	<-schedulerDone
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("sync still running at shutdown deadline")
	}

	return serveErr
}

func (s *Server) schedule(ctx context.Context) {
	if s.config.RunOnStart {
		if err := s.RunNow(ctx, "startup"); err != nil {
			s.logger.WithError(err).Warn("startup run skipped")
		}
	}
	if s.config.Interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	s.setNextRun(time.Now().Add(s.config.Interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.setNextRun(time.Now().Add(s.config.Interval))
			if err := s.RunNow(ctx, "schedule"); err != nil {
				s.logger.WithError(err).Warn("scheduled run skipped")
			}
		}
	}
}

func (s *Server) setNextRun(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun = t
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) syncHandler(w http.ResponseWriter, r *http.Request) {
	err := s.Trigger("api")
	switch {
	case errors.Is(err, ErrRunInProgress):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "started"})
	}
}

func (s *Server) resetBreakerHandler(w http.ResponseWriter, r *http.Request) {
	operation := mux.Vars(r)["operation"]

	br, ok := s.currentRunner().(breakerRunner)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "runner has no circuit breakers"})
		return
	}
	if err := br.ResetCircuitBreaker(operation); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
		return
	}

	s.logger.WithField("operation", operation).Info("circuit breaker reset")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "reset", "operation": operation})
}

func authMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitMiddleware(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Every(time.Second), 5)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
