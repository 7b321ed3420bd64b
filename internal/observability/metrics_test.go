package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTransition("connected")
	m.ObserveCredentialFetch("ok")
	m.ObserveSpeakError("opening")
	m.ObserveKeepAlive(errors.New("boom"))
	m.ObserveDemoNavigation()
	m.ObserveTeardown(time.Second)
	m.ObserveSessionEvent("created", 1)
	m.ObserveWSMessage("inbound", "client_control")
}

func TestMetricsHandlerExposesInstruments(t *testing.T) {
	m := NewMetrics("observability_test")
	m.ObserveTransition("connected")
	m.ObserveKeepAlive(nil)
	m.ObserveSessionEvent("created", 2)
	m.ObserveTeardown(120 * time.Millisecond)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`observability_test_state_transitions_total{state="connected"} 1`,
		`observability_test_keepalive_pings_total{outcome="ok"} 1`,
		`observability_test_active_sessions 2`,
		`observability_test_teardown_latency_ms_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
