package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/history"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/lifecycle"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/panel"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/reqctx"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/traffic"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/validation"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// SnapshotProvider computes the current telemetry snapshot.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// PanelController is the panel surface used by the handlers.
type PanelController interface {
	Refresh(ctx context.Context) error
	State() panel.State
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	snapshots        SnapshotProvider
	panel            PanelController
	history          history.Reader
	healthConfig     *HealthConfig
	refreshTimeout   time.Duration
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. historyReader may be nil when no readable sink is configured.
func NewHandler(
	snapshots SnapshotProvider,
	p PanelController,
	historyReader history.Reader,
	healthConfig *HealthConfig,
	refreshTimeout time.Duration,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		snapshots:      snapshots,
		panel:          p,
		history:        historyReader,
		healthConfig:   healthConfig,
		refreshTimeout: refreshTimeout,
		logger:         logger,
	}
}

// GetSolarData handles GET /api/solar-data.
func (h *Handler) GetSolarData(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Snapshot(r.Context())
	if err != nil {
		traffic.RecordError()
		reqctx.Logger(r.Context(), h.logger).Error("error in solar data route", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch solar power data"})
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, snap)
}

// GetPanelPage handles GET /.
func (h *Handler) GetPanelPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := panel.Render(w, h.panel.State().View); err != nil {
		reqctx.Logger(r.Context(), h.logger).Error("render panel", zap.Error(err))
	}
}

// PostRefresh handles POST /refresh. The refresh outlives the request so a client that
// navigates away does not cancel it; the page shows the outcome.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	if h.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.refreshTimeout)
		defer cancel()
	}
	if err := h.panel.Refresh(ctx); err != nil && !errors.Is(err, panel.ErrSuperseded) {
		reqctx.Logger(r.Context(), h.logger).Debug("refresh failed", zap.Error(err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type panelViewResponse struct {
	Status      string       `json:"status"`
	Generation  uint64       `json:"generation"`
	Cards       []panel.Card `json:"cards"`
	Error       string       `json:"error,omitempty"`
	LastUpdated string       `json:"lastUpdated"`
}

// GetPanelView handles GET /api/panel.
func (h *Handler) GetPanelView(w http.ResponseWriter, r *http.Request) {
	st := h.panel.State()
	lastUpdated := ""
	if !st.View.LastUpdated.IsZero() {
		lastUpdated = st.View.LastUpdated.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, panelViewResponse{
		Status:      st.Status.String(),
		Generation:  st.Generation,
		Cards:       st.View.Cards,
		Error:       st.View.Error,
		LastUpdated: lastUpdated,
	})
}

// GetHistory handles GET /api/history/{location}?limit=N.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	location, err := validation.ValidateLocation(mux.Vars(r)["location"], validation.MinLocationLen, validation.MaxLocationLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	if h.history == nil {
		writeError(w, r, http.StatusNotFound, "HISTORY_DISABLED", "no readable history sink is configured")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and "+strconv.Itoa(maxHistoryLimit))
			return
		}
		limit = n
	}

	records, err := h.history.Recent(r.Context(), location, limit)
	if err != nil {
		reqctx.Logger(r.Context(), h.logger).Error("history query failed", zap.String("location", location), zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Unable to read history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location": location,
		"records":  records,
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["solarData"] = "unhealthy"
	} else {
		checks["solarData"] = "healthy"
	}
	version := "dev"
	if h.healthConfig != nil {
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
		if h.healthConfig.Version != "" {
			version = h.healthConfig.Version
		}
	}
	body := map[string]interface{}{
		"status":    result.status,
		"service":   "solar-telemetry-monitor",
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if since, ok := lifecycle.ShutdownSince(); ok {
		body["shutdownSince"] = since.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, body)
}

// computeHealthStatus evaluates conditions in priority order: shutting-down > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && traffic.Degraded(h.healthConfig.DegradedWindow, h.healthConfig.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": reqctx.CorrelationID(r.Context()),
		},
	})
}
