package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("a")
	IncStop("a", false)
	IncStop("a", true)
	IncSpawnFailure("b")
	IncEviction("c")
	SetLiveProcesses(2)
	IncRotation("a")
	AddRetentionDeletes(3)
	ObserveMaintenance(0.01)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{
		"jarmgr_process_starts_total":          false,
		"jarmgr_process_stops_total":           false,
		"jarmgr_process_spawn_failures_total":  false,
		"jarmgr_registry_evictions_total":      false,
		"jarmgr_registry_live_processes":       false,
		"jarmgr_logs_rotations_total":          false,
		"jarmgr_logs_retention_deletes_total":  false,
		"jarmgr_daemon_maintenance_runs_total": false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := want[n]; ok {
			want[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
		if n == "jarmgr_process_stops_total" && len(mf.GetMetric()) != 2 {
			t.Fatalf("expected graceful and kill series, got %d", len(mf.GetMetric()))
		}
	}
	for n, ok := range want {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesText(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("expected default go collectors in output")
	}
}
