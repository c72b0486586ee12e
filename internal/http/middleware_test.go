package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/reqctx"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/traffic"
)

func newTestRouter(snaps SnapshotProvider, cfg RouterConfig) *mux.Router {
	handler := NewHandler(snaps, &mockPanel{}, nil, nil, 0, zap.NewNop())
	return NewRouter(handler, cfg, zap.NewNop())
}

func TestMiddleware_ThroughRouter(t *testing.T) {
	router := newTestRouter(&mockSnapshots{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/solar-data", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen = reqctx.CorrelationID(r.Context())
		if reqctx.Logger(r.Context(), nil) == nil {
			t.Error("request logger missing from context")
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if seen != "abc-123" {
		t.Errorf("context correlation id = %q, want abc-123", seen)
	}
	if got := w.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("response X-Correlation-ID = %q, want abc-123", got)
	}
}

func TestMiddleware_TracksInFlight(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	inside := make(chan int64, 1)
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		inside <- InFlightCount()
	})

	before := InFlightCount()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if got := <-inside; got != before+1 {
		t.Errorf("in-flight during request = %d, want %d", got, before+1)
	}
	if got := InFlightCount(); got != before {
		t.Errorf("in-flight after request = %d, want %d", got, before)
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	snaps := &mockSnapshots{block: make(chan struct{})}
	defer close(snaps.block)
	router := newTestRouter(snaps, RouterConfig{RequestTimeout: 50 * time.Millisecond})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/solar-data", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d (timeout should fail the snapshot)", w.Code, http.StatusInternalServerError)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	traffic.Reset()
	router := newTestRouter(&mockSnapshots{}, RouterConfig{Limiter: rate.NewLimiter(1, 2)})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/solar-data", nil))

		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		var errResp struct {
			Error struct {
				Code      string `json:"code"`
				RequestID string `json:"requestId"`
			} `json:"error"`
		}
		if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
			t.Fatalf("decode 429 response: %v", err)
		}
		if errResp.Error.Code != "RATE_LIMITED" || errResp.Error.RequestID == "" {
			t.Errorf("error = %+v", errResp.Error)
		}
	}
	if n := traffic.DenialCount(time.Minute); n != 1 {
		t.Errorf("denials = %d, want 1", n)
	}
}

func TestRateLimit_OnlyAppliesToAPI(t *testing.T) {
	router := newTestRouter(&mockSnapshots{}, RouterConfig{Limiter: rate.NewLimiter(rate.Limit(0.001), 1)})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("/health was rate limited")
		}
	}
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(&mockSnapshots{snap: models.Snapshot{}}, RouterConfig{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodPost, "/refresh", http.StatusSeeOther},
		{http.MethodGet, "/api/panel", http.StatusOK},
		{http.MethodGet, "/api/solar-data", http.StatusOK},
		{http.MethodGet, "/api/history/Curepipe", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/refresh", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil).WithContext(context.Background()))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/api/solar-data", "/api/solar-data"},
		{"/api/history/Le%20Morne", "/api/history/{location}"},
		{"/wp-admin", "other"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if got := getRoute(req); got != tt.want {
			t.Errorf("getRoute(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
