package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies label dimensions match usage across client, http, service,
// panel, history and cache packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/api/solar-data", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/api/solar-data").Observe(0.01)
	UpstreamCallsTotal.WithLabelValues("meteosource", "success").Inc()
	UpstreamDuration.WithLabelValues("noaa", "server_error").Observe(0.1)
	UpstreamRetriesTotal.WithLabelValues("noaa").Inc()
	CacheHitsTotal.WithLabelValues("cloud_cover").Inc()
	CacheMissesTotal.WithLabelValues("cloud_cover").Inc()
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	SnapshotBuildsTotal.WithLabelValues("success").Inc()
	SnapshotFallbackSitesTotal.WithLabelValues("other").Inc()
	PanelRefreshesTotal.WithLabelValues("superseded").Inc()
	HistorySavesTotal.WithLabelValues("sqlite", "error").Inc()
	RecordCircuitBreakerTransition("meteosource", "closed", "open", 1)
}

func TestMetricLocationLabel(t *testing.T) {
	SetTrackedLocations([]string{"Curepipe", "Le Morne"})
	defer SetTrackedLocations(nil)

	tests := []struct {
		in   string
		want string
	}{
		{"Curepipe", "curepipe"},
		{"  LE MORNE ", "le morne"},
		{"Atlantis", "other"},
	}
	for _, tt := range tests {
		if got := MetricLocationLabel(tt.in); got != tt.want {
			t.Errorf("MetricLocationLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
