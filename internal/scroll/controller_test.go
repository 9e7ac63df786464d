package scroll

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valpere/listingsync/internal/browser"
)

// fakeSurface replays a sequence of item counts, one per Evaluate call.
// Once the sequence is exhausted the last count repeats.
type fakeSurface struct {
	counts    []int
	calls     int
	scrolls   int
	waits     []string
	waitErr   error
	evalErr   error
	scrollErr error
}

func (f *fakeSurface) Evaluate(_ context.Context, _ string, res interface{}) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	i := f.calls
	if i >= len(f.counts) {
		i = len(f.counts) - 1
	}
	f.calls++
	*(res.(*int)) = f.counts[i]
	return nil
}

func (f *fakeSurface) ScrollToBottom(context.Context) error {
	f.scrolls++
	return f.scrollErr
}

func (f *fakeSurface) WaitUntil(_ context.Context, predicate string, _ time.Duration) error {
	f.waits = append(f.waits, predicate)
	if f.waitErr != nil {
		return f.waitErr
	}
	return browser.ErrWaitTimeout
}

func newTestController(cfg Config) *Controller {
	cfg.ItemSelector = "li.file"
	cfg.WaitTimeout = time.Millisecond
	return NewController(cfg, nil)
}

func TestExhaustScrollStopsAfterStableStreak(t *testing.T) {
	surface := &fakeSurface{counts: []int{10, 20, 30, 30, 30, 30, 30, 30, 30, 30}}
	c := newTestController(Config{StabilityThreshold: 5})

	stats, err := c.ExhaustScroll(context.Background(), surface)
	if err != nil {
		t.Fatalf("ExhaustScroll failed: %v", err)
	}

	// Growth on cycles 1-3, then five unchanged reads.
	if stats.Cycles != 8 {
		t.Errorf("Cycles = %d, want 8", stats.Cycles)
	}
	if stats.FinalCount != 30 {
		t.Errorf("FinalCount = %d, want 30", stats.FinalCount)
	}
	if surface.scrolls != 8 {
		t.Errorf("scrolls = %d, want 8", surface.scrolls)
	}
	if stats.Timeouts != 8 {
		t.Errorf("Timeouts = %d, want 8", stats.Timeouts)
	}
}

func TestExhaustScrollTransientPlateauResetsStreak(t *testing.T) {
	surface := &fakeSurface{counts: []int{10, 10, 10, 10, 25, 25, 25, 25, 25, 25}}
	c := newTestController(Config{StabilityThreshold: 5})

	stats, err := c.ExhaustScroll(context.Background(), surface)
	if err != nil {
		t.Fatalf("ExhaustScroll failed: %v", err)
	}
	if stats.FinalCount != 25 {
		t.Errorf("FinalCount = %d, want 25", stats.FinalCount)
	}
	// Plateau of 3 at 10 is not enough; streak restarts at the 25 jump.
	if stats.Cycles != 10 {
		t.Errorf("Cycles = %d, want 10", stats.Cycles)
	}
}

func TestExhaustScrollEmptyList(t *testing.T) {
	surface := &fakeSurface{counts: []int{0}}
	c := newTestController(Config{StabilityThreshold: 5})

	stats, err := c.ExhaustScroll(context.Background(), surface)
	if err != nil {
		t.Fatalf("ExhaustScroll failed: %v", err)
	}
	if stats.Cycles != 5 || stats.FinalCount != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExhaustScrollWaitPredicate(t *testing.T) {
	surface := &fakeSurface{counts: []int{7}}
	c := newTestController(Config{StabilityThreshold: 1})

	if _, err := c.ExhaustScroll(context.Background(), surface); err != nil {
		t.Fatalf("ExhaustScroll failed: %v", err)
	}
	if len(surface.waits) == 0 {
		t.Fatal("expected a wait")
	}
	want := `document.querySelectorAll("li.file").length > 7`
	if surface.waits[0] != want {
		t.Errorf("predicate = %q, want %q", surface.waits[0], want)
	}
}

func TestExhaustScrollSuccessfulWaitIsNotTimeout(t *testing.T) {
	surface := &fakeSurface{counts: []int{1, 2, 3, 3}}
	c := newTestController(Config{StabilityThreshold: 1})

	// Waits succeed while the list grows, then time out twice.
	grow := &growingSurface{fakeSurface: surface}
	stats, err := c.ExhaustScroll(context.Background(), grow)
	if err != nil {
		t.Fatalf("ExhaustScroll failed: %v", err)
	}
	if stats.Timeouts != 2 {
		t.Errorf("Timeouts = %d, want 2", stats.Timeouts)
	}
}

// growingSurface reports a successful wait whenever the next count is
// larger than the current one.
type growingSurface struct {
	*fakeSurface
}

func (g *growingSurface) WaitUntil(_ context.Context, predicate string, _ time.Duration) error {
	g.waits = append(g.waits, predicate)
	next := g.calls
	if next < len(g.counts) && next > 0 && g.counts[next] > g.counts[next-1] {
		return nil
	}
	return browser.ErrWaitTimeout
}

func TestExhaustScrollMaxCycles(t *testing.T) {
	counts := make([]int, 100)
	for i := range counts {
		counts[i] = i + 1
	}
	surface := &fakeSurface{counts: counts}
	c := newTestController(Config{StabilityThreshold: 5, MaxCycles: 4})

	stats, err := c.ExhaustScroll(context.Background(), surface)
	if err != nil {
		t.Fatalf("ExhaustScroll failed: %v", err)
	}
	if !stats.Capped || stats.Cycles != 4 || stats.FinalCount != 4 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExhaustScrollPropagatesSurfaceErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		surface *fakeSurface
	}{
		{"evaluate", &fakeSurface{counts: []int{1}, evalErr: boom}},
		{"scroll", &fakeSurface{counts: []int{1}, scrollErr: boom}},
		{"wait", &fakeSurface{counts: []int{1}, waitErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(Config{})
			if _, err := c.ExhaustScroll(context.Background(), tt.surface); !errors.Is(err, boom) {
				t.Errorf("expected boom, got %v", err)
			}
		})
	}
}

func TestExhaustScrollCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	surface := &fakeSurface{counts: []int{1, 2, 3}}
	c := newTestController(Config{Interval: time.Hour})

	_, err := c.ExhaustScroll(ctx, surface)
	if err == nil {
		t.Fatal("expected an error from the canceled context")
	}
}

func TestControllerNotReentrant(t *testing.T) {
	c := newTestController(Config{StabilityThreshold: 1})
	if _, err := c.ExhaustScroll(context.Background(), &fakeSurface{counts: []int{0}}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := c.ExhaustScroll(context.Background(), &fakeSurface{counts: []int{0}}); !errors.Is(err, ErrControllerUsed) {
		t.Errorf("expected ErrControllerUsed, got %v", err)
	}
}

func TestNewControllerDefaults(t *testing.T) {
	c := NewController(Config{ItemSelector: `a[href="x"]`}, nil)
	if c.config.StabilityThreshold != DefaultStabilityThreshold {
		t.Errorf("threshold = %d", c.config.StabilityThreshold)
	}
	if !strings.Contains(c.countScript, `"a[href=\"x\"]"`) {
		t.Errorf("selector not quoted safely: %s", c.countScript)
	}
}
