package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/cache"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/circuitbreaker"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/client"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/config"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/history"
	httphandler "github.com/kjstillabower/solar-telemetry-monitor/internal/http"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/lifecycle"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/observability"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/panel"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	retry := client.RetryPolicy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
	}
	windClient := client.NewSolarWindClient(cfg.SolarWindURL, cfg.SolarWindTimeout, retry)
	windClient.SetCircuitBreaker(newBreaker(cfg, "noaa"))

	weatherClient, err := client.NewMeteosourceClient(cfg.MeteosourceAPIKey, cfg.MeteosourceURL, cfg.MeteosourceTimeout, retry)
	if err != nil {
		logger.Fatal("meteosource client", zap.Error(err))
	}
	weatherClient.SetCircuitBreaker(newBreaker(cfg, "meteosource"))
	logger.Info("circuit breakers enabled",
		zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
		zap.Duration("timeout", cfg.CircuitBreakerTimeout))

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	historyCfg := history.Config{
		Sinks:        cfg.HistorySinks,
		SQLitePath:   cfg.SQLitePath,
		PostgresDSN:  cfg.PostgresDSN,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
	}
	if cfg.AppSheetAccessKey != "" {
		sheet, err := client.NewAppSheetClient(client.AppSheetConfig{
			BaseURL:   cfg.AppSheetURL,
			AppID:     cfg.AppSheetAppID,
			Table:     cfg.AppSheetTable,
			AccessKey: cfg.AppSheetAccessKey,
			TimeZone:  cfg.TimeZone,
			Timeout:   cfg.AppSheetTimeout,
		})
		if err != nil {
			logger.Fatal("appsheet client", zap.Error(err))
		}
		historyCfg.AppSheet = sheet
	}
	openCtx, openCancel := context.WithTimeout(context.Background(), 30*time.Second)
	sinks, historyReader, err := history.Open(openCtx, historyCfg)
	openCancel()
	if err != nil {
		logger.Fatal("history sinks", zap.Error(err))
	}
	logger.Info("history sinks opened", zap.Strings("sinks", cfg.HistorySinks), zap.Bool("readable", historyReader != nil))

	sunrise := client.NewSunriseClient(cfg.SunriseURL, cfg.SunriseLat, cfg.SunriseLng, cfg.Location, cfg.SunriseTimeout)
	recorder := history.NewRecorder(sinks, sunrise, logger)

	solarService := service.NewSolarService(windClient, weatherClient, cacheSvc, recorder, service.Config{
		Sites:              cfg.Sites,
		CacheTTL:           cfg.CacheTTL,
		FallbackCloudCover: cfg.FallbackCloudCover,
		Thresholds:         cfg.Thresholds,
		CoalesceTimeout:    cfg.CoalesceTimeout,
	}, logger)
	observability.SetTrackedLocations(cfg.TrackedLocations)

	// Background work stops when bgCancel runs at shutdown.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	warmer := cache.NewCacheWarmer(solarService, logger)
	go func() {
		warmCtx, warmCancel := context.WithTimeout(bgCtx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.Sites); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.CacheWarmInterval > 0 {
			if err := warmer.WarmPeriodic(bgCtx, cfg.Sites, cfg.CacheWarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}
	}()

	snapshotClient := client.NewSnapshotClient(cfg.PanelSourceURL, cfg.PanelTimeout)
	solarPanel := panel.New(snapshotClient, cfg.Location, logger)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		Version:          version,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(solarService, solarPanel, historyReader, healthConfig, cfg.PanelRefreshTimeout, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	// The panel loads once on start, then on every poll tick.
	go func() {
		if err := solarPanel.Refresh(bgCtx); err != nil && !errors.Is(err, panel.ErrSuperseded) {
			logger.Warn("initial panel load failed", zap.Error(err))
		}
		panel.NewPoller(solarPanel, cfg.PanelInterval, logger).Run(bgCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightPollInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	bgCancel()

	closers := []io.Closer{recorder}
	if memcacheCloser != nil {
		closers = append(closers, memcacheCloser)
	}
	if err := observability.FlushTelemetry(shutdownCtx, logger, closers...); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newBreaker builds a circuit breaker for one upstream and exports its state.
func newBreaker(cfg *config.Config, component string) *circuitbreaker.CircuitBreaker {
	observability.CircuitBreakerState.WithLabelValues(component).Set(0)
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		OnStateChange: func(component string, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
		},
	})
}
