package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/flowgate/adapters/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func TestRecordDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.RecordDispatch("REST", "ok", 5*time.Millisecond)
	m.RecordDispatch("REST", "ok", 7*time.Millisecond)
	m.RecordDispatch("", "no_match", time.Millisecond)

	f := gather(t, reg, "flowgate_dispatch_total")
	if len(f.GetMetric()) != 2 {
		t.Fatalf("expected 2 metric series, got %d", len(f.GetMetric()))
	}
	for _, metric := range f.GetMetric() {
		labels := map[string]string{}
		for _, l := range metric.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		switch labels["outcome"] {
		case "ok":
			if metric.GetCounter().GetValue() != 2 {
				t.Errorf("ok count = %v, want 2", metric.GetCounter().GetValue())
			}
		case "no_match":
			if labels["flow_type"] != "none" {
				t.Errorf("flow_type = %s, want none", labels["flow_type"])
			}
		}
	}

	h := gather(t, reg, "flowgate_dispatch_duration_seconds")
	var samples uint64
	for _, metric := range h.GetMetric() {
		samples += metric.GetHistogram().GetSampleCount()
	}
	if samples != 3 {
		t.Errorf("duration samples = %d, want 3", samples)
	}
}

func TestRecordViolations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.RecordViolations("input", 2)
	m.RecordViolations("input", 1)

	f := gather(t, reg, "flowgate_validation_violations_total")
	if got := f.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("violations = %v, want 3", got)
	}
}

func TestRecordCatalogReload(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	at := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	m.RecordCatalogReload(true, at, 4)
	m.RecordCatalogReload(false, at.Add(time.Minute), 0)

	if got := gather(t, reg, "flowgate_catalog_last_reload_timestamp").GetMetric()[0].GetGauge().GetValue(); got != float64(at.Unix()) {
		t.Errorf("last reload = %v, want %v", got, at.Unix())
	}
	if got := gather(t, reg, "flowgate_catalog_flows").GetMetric()[0].GetGauge().GetValue(); got != 4 {
		t.Errorf("flows = %v, want 4 (failed reload keeps the value)", got)
	}
	if got := len(gather(t, reg, "flowgate_catalog_reloads_total").GetMetric()); got != 2 {
		t.Errorf("reload series = %d, want 2", got)
	}
}

func TestRecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.RecordRequest("http", 200, time.Millisecond)
	m.RecordRequest("http", 404, time.Millisecond)
	m.RecordRequest("mqtt", 200, time.Millisecond)

	if got := len(gather(t, reg, "flowgate_requests_total").GetMetric()); got != 3 {
		t.Errorf("request series = %d, want 3", got)
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{409, "4xx"},
		{504, "5xx"},
		{0, "unknown"},
		{700, "unknown"},
	}

	for _, tt := range tests {
		if got := metrics.StatusClass(tt.status); got != tt.want {
			t.Errorf("StatusClass(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestHandler(t *testing.T) {
	reg := metrics.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	m.RecordRequest("http", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"flowgate_requests_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
