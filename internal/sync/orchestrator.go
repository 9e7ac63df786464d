// internal/sync/orchestrator.go

// Package sync runs one harvest: crawl the listing, merge it into the
// persisted table and write the table back.
package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/listingsync/internal/browser"
	"github.com/valpere/listingsync/internal/config"
	errs "github.com/valpere/listingsync/internal/errors"
	"github.com/valpere/listingsync/internal/extract"
	"github.com/valpere/listingsync/internal/monitoring"
	"github.com/valpere/listingsync/internal/reconcile"
	"github.com/valpere/listingsync/internal/sanitizer"
	"github.com/valpere/listingsync/internal/scroll"
	"github.com/valpere/listingsync/internal/storage"
	"github.com/valpere/listingsync/internal/table"
	"github.com/valpere/listingsync/internal/utils"
)

// Listing counter stages reported to metrics.
const (
	StageRendered  = "rendered"
	StageExtracted = "extracted"
	StageSkipped   = "skipped"
	StageAdmitted  = "admitted"
	StageKnown     = "known"
	StageDropped   = "dropped"
)

// StorageOpener acquires credentials and returns a ready backend.
type StorageOpener func(ctx context.Context) (storage.Backend, error)

// Options is everything one run needs besides its collaborators.
type Options struct {
	SourceURL     string
	ReadySelector string
	Login         *browser.LoginConfig

	Selectors extract.Selectors
	Scroll    scroll.Config
	Sanitizer *sanitizer.Sanitizer

	SheetID  string
	Range    string
	AdmitCap int

	// Timeout bounds the whole run; zero means no limit.
	Timeout time.Duration
	// DryRun crawls and reconciles but never touches the stored table.
	DryRun bool
}

// Summary reports what one run did.
type Summary struct {
	RunID     string        `json:"run_id"`
	DryRun    bool          `json:"dry_run"`
	Rendered  int           `json:"rendered"`
	Extracted int           `json:"extracted"`
	Skipped   int           `json:"skipped"`
	Prior     int           `json:"prior"`
	Admitted  int           `json:"admitted"`
	Known     int           `json:"known"`
	Dropped   int           `json:"dropped"`
	Repeated  int           `json:"repeated"`
	Written   int           `json:"written"`
	Cycles    int           `json:"scroll_cycles"`
	Duration  time.Duration `json:"duration"`

	// Browser is the session's counters when the surface reports them.
	Browser *browser.BrowserStats `json:"browser,omitempty"`
}

// Orchestrator sequences the pipeline. It holds no state between runs.
type Orchestrator struct {
	options     Options
	launcher    browser.Launcher
	openStorage StorageOpener
	retry       *errs.Service
	metrics     *monitoring.MetricsManager
	logger      utils.Logger
}

// New creates an orchestrator. retry, metrics and logger may be nil.
func New(options Options, launcher browser.Launcher, openStorage StorageOpener,
	retry *errs.Service, metrics *monitoring.MetricsManager, logger utils.Logger) *Orchestrator {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if retry == nil {
		retry = errs.NewServiceWithConfig(errs.RetryConfig{}, logger)
	}
	if options.Sanitizer == nil {
		options.Sanitizer = sanitizer.Default()
	}
	if options.Range == "" {
		options.Range = storage.DefaultRange
	}
	if options.Scroll.ItemSelector == "" {
		options.Scroll.ItemSelector = options.Selectors.Item
	}
	return &Orchestrator{
		options:     options,
		launcher:    launcher,
		openStorage: openStorage,
		retry:       retry,
		metrics:     metrics,
		logger:      logger.WithField("component", "sync"),
	}
}

// FromConfig wires the Chrome launcher and the configured storage backend.
func FromConfig(cfg *config.Config, metrics *monitoring.MetricsManager, logger utils.Logger) *Orchestrator {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	browserConfig := cfg.Browser
	storageConfig := cfg.Storage.Config
	retry := errs.NewServiceWithConfig(cfg.Retry, logger)
	retry.ConfigureCircuitBreaker(cfg.CircuitBreaker)

	return New(Options{
		SourceURL:     cfg.Source.URL,
		ReadySelector: cfg.Source.ReadySelector,
		Login:         cfg.Source.Login,
		Selectors:     cfg.Selectors,
		Scroll:        cfg.Scroll,
		Sanitizer:     sanitizer.New(cfg.Vocabulary),
		SheetID:       storageConfig.SheetID,
		Range:         storageConfig.Range,
		AdmitCap:      cfg.Storage.AdmitCap,
		Timeout:       cfg.Timeout,
	},
		browser.ChromeLauncher{Config: &browserConfig, Logger: logger},
		func(ctx context.Context) (storage.Backend, error) {
			return storage.Open(ctx, storageConfig, logger)
		},
		retry,
		metrics,
		logger,
	)
}

// WithDryRun returns a copy that skips the final write.
func (o *Orchestrator) WithDryRun(dryRun bool) *Orchestrator {
	clone := *o
	clone.options.DryRun = dryRun
	return &clone
}

// CircuitBreakerStats reports the breakers guarding storage calls, keyed
// by operation.
func (o *Orchestrator) CircuitBreakerStats() map[string]interface{} {
	return o.retry.GetCircuitBreakerStats()
}

// ResetCircuitBreaker closes the breaker for operation.
func (o *Orchestrator) ResetCircuitBreaker(operation string) error {
	return o.retry.ResetCircuitBreaker(operation)
}

// Run performs one sync. The browser session is closed on every path and
// the stored table is only written after every earlier stage succeeded.
func (o *Orchestrator) Run(ctx context.Context) (summary *Summary, err error) {
	start := time.Now()
	summary = &Summary{RunID: uuid.NewString(), DryRun: o.options.DryRun}
	logger := o.logger.WithField("run_id", summary.RunID)

	o.metrics.RecordRunStart()
	defer func() {
		summary.Duration = time.Since(start)
		o.finish(logger, summary, err)
	}()

	if o.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.options.Timeout)
		defer cancel()
	}

	logger.WithField("url", o.options.SourceURL).Info("sync started")

	backend, err := o.openStorage(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorization) {
			return summary, utils.Wrap(utils.ErrCodeAuthFailed, "failed to authorize storage access", err)
		}
		return summary, utils.Wrap(utils.ErrCodeStorageFailed, "failed to open storage", err)
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			logger.WithError(cerr).Warn("failed to close storage")
		}
	}()

	fresh, err := o.crawl(ctx, logger, summary)
	if err != nil {
		return summary, err
	}

	priorRows, err := o.readTable(ctx, backend)
	if err != nil {
		return summary, utils.Wrap(utils.ErrCodeStorageFailed, "failed to read stored table", err)
	}
	prior := table.ParseRows(priorRows)
	summary.Prior = len(prior)

	result := reconcile.Reconcile(fresh, prior, o.options.AdmitCap)
	summary.Admitted = len(result.Admitted)
	summary.Known = result.Known
	summary.Dropped = result.Dropped
	summary.Repeated = result.Repeated

	logger.WithFields(map[string]interface{}{
		"prior":    summary.Prior,
		"admitted": summary.Admitted,
		"known":    summary.Known,
		"dropped":  summary.Dropped,
	}).Info("records reconciled")

	if o.options.DryRun {
		for _, rec := range result.Admitted {
			logger.WithFields(map[string]interface{}{"title": rec.OriginalTitle, "year": rec.Year}).Info("would admit")
		}
		return summary, nil
	}

	if cleared, err := o.writeTable(ctx, backend, table.Rows(result.Records)); err != nil {
		builder := utils.NewError(utils.ErrCodeStorageFailed, "failed to write stored table").WithCause(err)
		if cleared {
			builder = builder.WithSeverity(utils.SeverityCritical).
				WithContext("sheet_id", o.options.SheetID).
				WithContext("range", o.options.Range)
		}
		return summary, builder.Build()
	}
	summary.Written = len(result.Records)
	o.metrics.SetTableRecords(len(result.Records))

	return summary, nil
}

// crawl owns the browser session: open, load every item, extract and
// sanitize. Records come back in page order.
func (o *Orchestrator) crawl(ctx context.Context, logger utils.Logger, summary *Summary) ([]table.Record, error) {
	surface, err := o.launcher.Launch(ctx)
	if err != nil {
		return nil, utils.Wrap(utils.ErrCodeBrowserFailed, "failed to start browser", err)
	}
	defer func() {
		if reporter, ok := surface.(browser.StatsReporter); ok {
			stats := reporter.GetStats()
			summary.Browser = &stats
			logger.WithFields(map[string]interface{}{
				"pages_loaded":  stats.PagesLoaded,
				"errors":        stats.Errors,
				"js_errors":     stats.JavaScriptErrors,
				"wait_timeouts": stats.TimeoutsOccurred,
			}).Debug("browser session stats")
		}
		if cerr := surface.Close(); cerr != nil {
			logger.WithError(cerr).Warn("failed to close browser")
		}
	}()

	if o.options.Login.Enabled() {
		if err := surface.Login(ctx, o.options.Login); err != nil {
			return nil, utils.Wrap(utils.ErrCodeNavigationFailed, "login failed", err)
		}
	}
	if err := surface.Navigate(ctx, o.options.SourceURL, o.options.ReadySelector); err != nil {
		return nil, utils.Wrap(utils.ErrCodeNavigationFailed, "failed to open listing", err)
	}

	scrollStats, err := scroll.NewController(o.options.Scroll, logger).ExhaustScroll(ctx, surface)
	summary.Cycles = scrollStats.Cycles
	o.metrics.RecordScroll(scrollStats.Cycles, scrollStats.Timeouts)
	if err != nil {
		return nil, utils.Wrap(utils.ErrCodeBrowserFailed, "scrolling failed", err)
	}

	handles, err := surface.QueryAll(ctx, o.options.Selectors.Item)
	if err != nil {
		return nil, utils.Wrap(utils.ErrCodeExtractionFailed, "failed to read list items", err)
	}

	listings, stats := extract.NewExtractor(o.options.Selectors, logger).Extract(handles)
	summary.Rendered = stats.Items
	summary.Extracted = stats.Extracted
	summary.Skipped = stats.Skipped

	records := make([]table.Record, 0, len(listings))
	for _, listing := range listings {
		fields := o.options.Sanitizer.Sanitize(listing.Title)
		records = append(records, table.NewRecord(listing.Title, listing.Locator, listing.Size, fields))
	}

	logger.WithFields(map[string]interface{}{
		"rendered":  summary.Rendered,
		"extracted": summary.Extracted,
		"skipped":   summary.Skipped,
	}).Info("listing crawled")

	return records, nil
}

func (o *Orchestrator) readTable(ctx context.Context, backend storage.Backend) ([][]string, error) {
	var rows [][]string
	err := o.retry.ExecuteWithRetry(ctx, func() error {
		start := time.Now()
		var err error
		rows, err = backend.ReadRange(ctx, o.options.SheetID, o.options.Range)
		o.metrics.RecordStorageCall("read", err, time.Since(start))
		return err
	}, "storage.read")
	return rows, err
}

// writeTable replaces the stored range: clear, then write header and body.
// cleared reports whether the clear went through, so a failed write left
// the range empty.
func (o *Orchestrator) writeTable(ctx context.Context, backend storage.Backend, rows [][]string) (cleared bool, err error) {
	err = o.retry.ExecuteWithRetry(ctx, func() error {
		start := time.Now()
		err := backend.ClearRange(ctx, o.options.SheetID, o.options.Range)
		o.metrics.RecordStorageCall("clear", err, time.Since(start))
		return err
	}, "storage.clear")
	if err != nil {
		return false, err
	}

	return true, o.retry.ExecuteWithRetry(ctx, func() error {
		start := time.Now()
		err := backend.WriteRange(ctx, o.options.SheetID, o.options.Range, rows)
		o.metrics.RecordStorageCall("write", err, time.Since(start))
		return err
	}, "storage.write")
}

func (o *Orchestrator) finish(logger utils.Logger, summary *Summary, err error) {
	o.metrics.RecordListings(StageRendered, summary.Rendered)
	o.metrics.RecordListings(StageExtracted, summary.Extracted)
	o.metrics.RecordListings(StageSkipped, summary.Skipped)
	o.metrics.RecordListings(StageKnown, summary.Known)

	if err != nil {
		code, _ := utils.CodeOf(err)
		o.metrics.RecordRunEnd(monitoring.OutcomeFailure, string(code), summary.Duration)
		logger.WithError(err).WithFields(map[string]interface{}{
			"duration": summary.Duration.String(),
			"severity": utils.SeverityOf(err).String(),
		}).Error("sync failed")
		return
	}

	o.metrics.RecordListings(StageAdmitted, summary.Admitted)
	o.metrics.RecordListings(StageDropped, summary.Dropped)

	outcome := monitoring.OutcomeSuccess
	if summary.DryRun {
		outcome = monitoring.OutcomeDryRun
	}
	o.metrics.RecordRunEnd(outcome, "", summary.Duration)
	logger.WithFields(map[string]interface{}{
		"written":  summary.Written,
		"admitted": summary.Admitted,
		"dry_run":  summary.DryRun,
		"duration": summary.Duration.String(),
	}).Info("sync finished")
}
