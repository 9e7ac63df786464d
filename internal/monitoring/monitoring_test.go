package monitoring

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsManager_RecordRun(t *testing.T) {
	mm := NewMetricsManager(MetricsConfig{})

	mm.RecordRunStart()
	mm.RecordListings("extracted", 12)
	mm.RecordListings("admitted", 10)
	mm.RecordListings("dropped", 0)
	mm.RecordScroll(8, 3)
	mm.RecordStorageCall("read", nil, 20*time.Millisecond)
	mm.RecordStorageCall("write", errors.New("boom"), time.Second)
	mm.SetTableRecords(60)
	mm.RecordRunEnd(OutcomeSuccess, "", 30*time.Second)

	got, err := mm.GetMetrics()
	if err != nil {
		t.Fatalf("GetMetrics failed: %v", err)
	}

	want := map[string]float64{
		"listingsync_runs_total,outcome=success":                            1,
		"listingsync_runs_in_progress":                                      0,
		"listingsync_listings_total,stage=extracted":                        12,
		"listingsync_listings_total,stage=admitted":                         10,
		"listingsync_table_records":                                         60,
		"listingsync_scroll_wait_timeouts_total":                            3,
		"listingsync_scroll_cycles,count":                                   1,
		"listingsync_storage_operations_total,operation=read,status=ok":     1,
		"listingsync_storage_operations_total,operation=write,status=error": 1,
	}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("%s = %v, want %v", key, got[key], value)
		}
	}
	if _, ok := got["listingsync_listings_total,stage=dropped"]; ok {
		t.Error("zero counts should not create a series")
	}
	if got["listingsync_last_success_timestamp_seconds"] == 0 {
		t.Error("expected last success timestamp to be set")
	}
}

func TestMetricsManager_NilSafe(t *testing.T) {
	var mm *MetricsManager
	mm.RecordRunStart()
	mm.RecordListings("extracted", 1)
	mm.RecordScroll(1, 1)
	mm.RecordStorageCall("read", nil, time.Millisecond)
	mm.SetTableRecords(1)
	mm.RecordRunEnd(OutcomeFailure, "STORAGE_FAILED", time.Second)
}

func TestMetricsManager_Handler(t *testing.T) {
	mm := NewMetricsManager(MetricsConfig{Namespace: "test", Labels: map[string]string{"site": "demo"}})
	mm.RecordRunStart()
	mm.RecordRunEnd(OutcomeFailure, "NAVIGATION_FAILED", time.Second)

	rec := httptest.NewRecorder()
	mm.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `test_runs_total{error_code="NAVIGATION_FAILED",outcome="failure",site="demo"} 1`) {
		t.Errorf("expected run counter in output:\n%s", body)
	}
}

func TestMetricsManager_Push(t *testing.T) {
	var path, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	mm := NewMetricsManager(MetricsConfig{})
	mm.SetTableRecords(7)
	if err := mm.Push(context.Background(), server.URL, "nightly"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if path != "/metrics/job/nightly" {
		t.Errorf("push path = %q", path)
	}
	if body == "" {
		t.Error("expected a metrics payload")
	}
}

func TestHealthManager(t *testing.T) {
	hm := NewHealthManager("1.0.0")

	var last time.Time
	hm.RegisterCheck(LastRunHealthCheck(func() time.Time { return last }, time.Hour))
	hm.RegisterCheck(GoroutineHealthCheck(100000))

	health := hm.CheckHealth(context.Background())
	if health.Status != HealthStatusDegraded {
		t.Errorf("Expected degraded before the first run, got %s", health.Status)
	}
	if len(health.Checks) != 2 || health.Checks[0].Name != "goroutines" {
		t.Errorf("Expected sorted checks, got %+v", health.Checks)
	}

	last = time.Now()
	if health := hm.CheckHealth(context.Background()); health.Status != HealthStatusHealthy {
		t.Errorf("Expected healthy, got %s", health.Status)
	}

	hm.RegisterCheck(&HealthCheck{
		Name:     "storage",
		Critical: true,
		CheckFunc: func(ctx context.Context) HealthCheckResult {
			return HealthCheckResult{Status: HealthStatusUnhealthy, Error: errors.New("down")}
		},
	})

	rec := httptest.NewRecorder()
	hm.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"down"`) {
		t.Errorf("Expected check error in body: %s", rec.Body.String())
	}
}

func TestLastRunHealthCheckStale(t *testing.T) {
	check := LastRunHealthCheck(func() time.Time { return time.Now().Add(-2 * time.Hour) }, time.Hour)
	if got := check.CheckFunc(context.Background()); got.Status != HealthStatusUnhealthy {
		t.Errorf("Expected unhealthy for a stale run, got %s", got.Status)
	}
}
