// Package scroll drives an infinite-scroll list until it stops growing.
package scroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/valpere/listingsync/internal/browser"
	"github.com/valpere/listingsync/internal/utils"
)

// DefaultStabilityThreshold is the number of consecutive unchanged counts
// after which the list is considered fully loaded.
const DefaultStabilityThreshold = 5

// ErrControllerUsed is returned when ExhaustScroll is called twice on the
// same controller.
var ErrControllerUsed = errors.New("scroll controller already used")

// Surface is the part of the automation surface the controller needs.
type Surface interface {
	Evaluate(ctx context.Context, script string, res interface{}) error
	ScrollToBottom(ctx context.Context) error
	WaitUntil(ctx context.Context, predicate string, timeout time.Duration) error
}

// Config controls quiescence detection.
type Config struct {
	ItemSelector       string        `yaml:"-" json:"-"`
	StabilityThreshold int           `yaml:"stability_threshold" json:"stability_threshold"`
	WaitTimeout        time.Duration `yaml:"wait_timeout" json:"wait_timeout"`
	// Interval is the minimum spacing between scroll triggers.
	Interval time.Duration `yaml:"interval" json:"interval"`
	// MaxCycles stops the loop after this many cycles; 0 means no limit.
	MaxCycles int `yaml:"max_cycles" json:"max_cycles"`
}

// DefaultConfig returns the observed settings.
func DefaultConfig() Config {
	return Config{
		StabilityThreshold: DefaultStabilityThreshold,
		WaitTimeout:        3 * time.Second,
	}
}

// Stats describes one ExhaustScroll run.
type Stats struct {
	Cycles     int
	FinalCount int
	Timeouts   int
	// Capped is set when MaxCycles ended the loop before quiescence.
	Capped bool
}

// Controller owns the scroll state for one crawl session.
type Controller struct {
	config  Config
	limiter *rate.Limiter
	logger  utils.Logger
	used    bool

	countScript string
}

// NewController creates a controller. Zero threshold and timeout fall back
// to the defaults.
func NewController(config Config, logger utils.Logger) *Controller {
	if config.StabilityThreshold <= 0 {
		config.StabilityThreshold = DefaultStabilityThreshold
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = DefaultConfig().WaitTimeout
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	limit := rate.Inf
	if config.Interval > 0 {
		limit = rate.Every(config.Interval)
	}

	return &Controller{
		config:      config,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger.WithField("component", "scroll"),
		countScript: fmt.Sprintf("document.querySelectorAll(%s).length", jsString(config.ItemSelector)),
	}
}

// ExhaustScroll scrolls until the rendered item count has been unchanged
// for StabilityThreshold consecutive cycles. A wait that times out counts
// as no growth; any other surface error aborts.
func (c *Controller) ExhaustScroll(ctx context.Context, surface Surface) (Stats, error) {
	if c.used {
		return Stats{}, ErrControllerUsed
	}
	c.used = true

	var stats Stats
	previousCount := 0
	noChangeStreak := 0

	for {
		if c.config.MaxCycles > 0 && stats.Cycles >= c.config.MaxCycles {
			stats.Capped = true
			c.logger.WithFields(map[string]interface{}{"cycles": stats.Cycles, "count": previousCount}).
				Warn("scroll cycle limit reached before the list settled")
			break
		}
		stats.Cycles++

		currentCount, err := c.count(ctx, surface)
		if err != nil {
			return stats, err
		}
		if currentCount == previousCount {
			noChangeStreak++
		} else {
			noChangeStreak = 0
		}
		previousCount = currentCount
		stats.FinalCount = currentCount

		if err := c.limiter.Wait(ctx); err != nil {
			return stats, err
		}
		if err := surface.ScrollToBottom(ctx); err != nil {
			return stats, err
		}

		predicate := fmt.Sprintf("%s > %d", c.countScript, previousCount)
		if err := surface.WaitUntil(ctx, predicate, c.config.WaitTimeout); err != nil {
			if !errors.Is(err, browser.ErrWaitTimeout) {
				return stats, err
			}
			stats.Timeouts++
		}

		c.logger.WithFields(map[string]interface{}{
			"cycle":  stats.Cycles,
			"count":  currentCount,
			"streak": noChangeStreak,
		}).Debug("scroll cycle")

		if noChangeStreak >= c.config.StabilityThreshold {
			break
		}
	}

	if !stats.Capped {
		c.logger.WithFields(map[string]interface{}{"cycles": stats.Cycles, "count": stats.FinalCount}).Info("list settled")
	}
	return stats, nil
}

func (c *Controller) count(ctx context.Context, surface Surface) (int, error) {
	var n int
	if err := surface.Evaluate(ctx, c.countScript, &n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
