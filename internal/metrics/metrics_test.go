package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestNew_ToleratesDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	second, err := New(reg)
	if err != nil {
		t.Fatalf("second New on same registry: %v", err)
	}

	first.StaleResolution()
	second.StaleResolution()
	if out := scrape(t, first); !strings.Contains(out, "sentinel_guard_stale_resolutions_total 2") {
		t.Fatalf("both instances must share the collector:\n%s", out)
	}
}

func TestCounters(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	m.ObserveResolution("complete")
	m.ObserveResolution("complete")
	m.CaptureError("permission_denied")
	m.EnrollmentOutcome("uploading", false, 10*time.Millisecond)
	m.SimulatorRun(false)

	out := scrape(t, m)
	for _, want := range []string{
		`sentinel_profile_resolutions_total{classification="complete"} 2`,
		`sentinel_capture_errors_total{reason="permission_denied"} 1`,
		`sentinel_enrollment_outcomes_total{result="failed",stage="uploading"} 1`,
		`sentinel_enrollment_duration_seconds_count 1`,
		`sentinel_simulator_runs_total{result="cancelled"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in scrape output", want)
		}
	}
}

func TestHTTPStart(t *testing.T) {
	m, _ := New(prometheus.NewRegistry())
	done := m.HTTPStart("GET")
	done("/v1/screen", 0)
	if out := scrape(t, m); !strings.Contains(out, `http_requests_total{method="GET",path="/v1/screen",status="200"} 1`) {
		t.Fatalf("missing http counter:\n%s", out)
	}
}

func TestNilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveResolution("x")
	m.StaleResolution()
	m.CaptureError("x")
	m.EnrollmentOutcome("x", true, time.Second)
	m.SimulatorRun(true)
	m.HTTPStart("GET")("/", 200)
}
