package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/circuitbreaker"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/reqctx"
)

var fastRetry = RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestSolarWindClient_Latest_PicksNewestUsableRow(t *testing.T) {
	body := `[
		["time_tag","density","speed","temperature"],
		["2024-05-01 10:00:00.000","4.1","410.5","98000"],
		["2024-05-01 10:05:00.000","5.2","420.0","101000"],
		["2024-05-01 10:10:00.000","-1","430.0","101000"],
		["2024-05-01 10:15:00.000",null,"430.0","101000"]
	]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	c := NewSolarWindClient(server.URL, 2*time.Second, NoRetry)
	got, err := c.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.ObservedAt != "2024-05-01 10:05:00.000" {
		t.Errorf("ObservedAt = %q, want the 10:05 row", got.ObservedAt)
	}
	if got.Density != 5.2 || got.Speed != 420 || got.Temperature != 101000 {
		t.Errorf("Latest() = %+v", got)
	}
}

func TestSolarWindClient_Latest_NoUsableRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[["time_tag","density","speed","temperature"]]`))
	}))
	defer server.Close()

	c := NewSolarWindClient(server.URL, 2*time.Second, NoRetry)
	_, err := c.Latest(context.Background())
	if !errors.Is(err, ErrNoSolarWindSample) {
		t.Errorf("Latest() error = %v, want ErrNoSolarWindSample", err)
	}
}

func TestSolarWindClient_Latest_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[["t","1","2","3"]]`))
	}))
	defer server.Close()

	c := NewSolarWindClient(server.URL, 2*time.Second, fastRetry)
	if _, err := c.Latest(context.Background()); err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestIsPlainDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"12", true},
		{"12.5", true},
		{".5", true},
		{"5.", true},
		{"", false},
		{".", false},
		{"1.2.3", false},
		{"-1", false},
		{"1e5", false},
		{" 1", false},
	}
	for _, tt := range tests {
		if got := isPlainDecimal(tt.in); got != tt.want {
			t.Errorf("isPlainDecimal(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewMeteosourceClient_RequiresKey(t *testing.T) {
	c, err := NewMeteosourceClient("", "", time.Second, NoRetry)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("NewMeteosourceClient() error = %v, want ErrInvalidAPIKey", err)
	}
	if c != nil {
		t.Error("NewMeteosourceClient() expected nil client on error")
	}
}

func TestMeteosourceClient_CloudCover_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("place_id") != "Le Bocage" {
			t.Errorf("place_id = %q, want Le Bocage", q.Get("place_id"))
		}
		if q.Get("key") != "test-key" || q.Get("units") != "metric" || q.Get("sections") != "all" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-Correlation-ID") != "corr-1" {
			t.Errorf("X-Correlation-ID = %q, want corr-1", r.Header.Get("X-Correlation-ID"))
		}
		_, _ = w.Write([]byte(`{"current":{"cloud_cover":37,"summary":"Partly cloudy"}}`))
	}))
	defer server.Close()

	c, err := NewMeteosourceClient("test-key", server.URL, 2*time.Second, NoRetry)
	if err != nil {
		t.Fatalf("NewMeteosourceClient() error = %v", err)
	}
	ctx := reqctx.WithCorrelationID(context.Background(), "corr-1")
	got, err := c.CloudCover(ctx, "Le Bocage")
	if err != nil {
		t.Fatalf("CloudCover() error = %v", err)
	}
	if got != 37 {
		t.Errorf("CloudCover() = %v, want 37", got)
	}
}

func TestMeteosourceClient_CloudCover_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "401", status: http.StatusUnauthorized, wantErr: ErrInvalidAPIKey},
		{name: "404", status: http.StatusNotFound, wantErr: ErrNotFound},
		{name: "429", status: http.StatusTooManyRequests, wantErr: ErrRateLimited},
		{name: "500", status: http.StatusInternalServerError, wantErr: ErrUpstreamFailure},
		{name: "missing field", status: http.StatusOK, body: `{"current":{}}`},
		{name: "bad json", status: http.StatusOK, body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, _ := NewMeteosourceClient("test-key", server.URL, 2*time.Second, NoRetry)
			_, err := c.CloudCover(context.Background(), "Curepipe")
			if err == nil {
				t.Fatal("CloudCover() expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CloudCover() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMeteosourceClient_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, _ := NewMeteosourceClient("test-key", server.URL, 2*time.Second, NoRetry)
	c.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute}))

	ctx := context.Background()
	_, _ = c.CloudCover(ctx, "a")
	_, _ = c.CloudCover(ctx, "b")
	_, err := c.CloudCover(ctx, "c")
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("CloudCover() error = %v, want ErrOpen", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestRequester_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewSolarWindClient(server.URL, 2*time.Second, fastRetry)
	_, err := c.Latest(context.Background())
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("Latest() error = %v, want ErrUpstreamFailure", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 for 400", got)
	}
}

func TestSunriseClient_IsDaylight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "lat=-20.21863") {
			t.Errorf("query = %s, want lat", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"results":{"sunrise":"6:15:00 AM","sunset":"5:50:30 PM"},"status":"OK"}`))
	}))
	defer server.Close()

	loc := time.FixedZone("MUT", 4*3600)
	c := NewSunriseClient(server.URL, -20.21863, 57.50339, loc, 2*time.Second)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"noon", time.Date(2024, 5, 1, 12, 0, 0, 0, loc), true},
		{"before sunrise", time.Date(2024, 5, 1, 5, 59, 0, 0, loc), false},
		{"after sunset", time.Date(2024, 5, 1, 18, 0, 0, 0, loc), false},
		{"utc converted", time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.now = func() time.Time { return tt.now }
			got, err := c.IsDaylight(context.Background())
			if err != nil {
				t.Fatalf("IsDaylight() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsDaylight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSunriseClient_IsDaylight_FailureDefaultsToTrue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"sunrise":"garbage","sunset":"5:50:30 PM"}}`))
	}))
	defer server.Close()

	c := NewSunriseClient(server.URL, 0, 0, time.UTC, 2*time.Second)
	got, err := c.IsDaylight(context.Background())
	if err == nil {
		t.Error("IsDaylight() expected parse error")
	}
	if !got {
		t.Error("IsDaylight() = false, want true on failure")
	}
}

func TestSnapshotClient_FetchSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Site B":{"status":"low","cloud_cover":90,"power_output_on_ground":1},"Site A":{"status":"Optimal","cloud_cover":10,"power_output_on_ground":5.5}}`))
	}))
	defer server.Close()

	c := NewSnapshotClient(server.URL, 2*time.Second)
	snap, err := c.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	entries := snap.Entries()
	if len(entries) != 2 || entries[0].Name != "Site B" || entries[1].Name != "Site A" {
		t.Errorf("entries = %+v, want Site B then Site A", entries)
	}
}

func TestSnapshotClient_FetchSnapshot_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http 500", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Failed to fetch solar power data"}`))
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
		{"malformed entry", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"A":{"status":"low"}}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer server.Close()

			c := NewSnapshotClient(server.URL, 2*time.Second)
			_, err := c.FetchSnapshot(context.Background())
			if !errors.Is(err, ErrSnapshotUnavailable) {
				t.Errorf("FetchSnapshot() error = %v, want ErrSnapshotUnavailable", err)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("calls = %d, want exactly 1 (no retry)", got)
			}
		})
	}
}

func TestSnapshotClient_FetchSnapshot_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewSnapshotClient(url, time.Second)
	_, err := c.FetchSnapshot(context.Background())
	if !errors.Is(err, ErrSnapshotUnavailable) {
		t.Errorf("FetchSnapshot() error = %v, want ErrSnapshotUnavailable", err)
	}
	if got := CategorizeError(err); got != ErrorCategoryNetwork {
		t.Errorf("CategorizeError() = %v, want network", got)
	}
}
