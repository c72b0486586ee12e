package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/observability"
)

// RouterConfig holds the per-route middleware settings.
type RouterConfig struct {
	// RequestTimeout bounds /api requests; 0 disables the deadline.
	RequestTimeout time.Duration
	// Limiter rate-limits /api requests; nil disables limiting.
	Limiter *rate.Limiter
}

// NewRouter wires handlers and middleware.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/", h.GetPanelPage).Methods(http.MethodGet)
	router.HandleFunc("/refresh", h.PostRefresh).Methods(http.MethodPost)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/solar-data", h.GetSolarData).Methods(http.MethodGet)
	api.HandleFunc("/panel", h.GetPanelView).Methods(http.MethodGet)
	api.HandleFunc("/history/{location}", h.GetHistory).Methods(http.MethodGet)
	return router
}
