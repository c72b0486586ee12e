package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/cache"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/client"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/history"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/observability"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/reqctx"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/solar"
)

const snapshotKey = "snapshot"

// DefaultFallbackCloudCover is used for a site whose cloud cover lookup fails.
const DefaultFallbackCloudCover = 50

// SolarWindSource returns the latest solar wind sample.
type SolarWindSource interface {
	Latest(ctx context.Context) (models.SolarWind, error)
}

// HistoryRecorder persists the readings of one snapshot.
type HistoryRecorder interface {
	RecordAll(ctx context.Context, records []history.Record)
}

// Config holds the tunables of SolarService.
type Config struct {
	Sites              []models.Site
	CacheTTL           time.Duration
	FallbackCloudCover float64
	Thresholds         solar.Thresholds
	// CoalesceTimeout bounds a shared snapshot computation; 0 disables coalescing.
	CoalesceTimeout time.Duration
}

// SolarService builds telemetry snapshots from the solar wind feed and per-site cloud cover.
type SolarService struct {
	wind      SolarWindSource
	weather   client.CloudCoverClient
	cache     cache.Cache
	recorder  HistoryRecorder
	cfg       Config
	coalescer *requestCoalescer[models.Snapshot]
	logger    *zap.Logger
	now       func() time.Time
}

// NewSolarService creates a SolarService. recorder may be nil.
func NewSolarService(wind SolarWindSource, weather client.CloudCoverClient, c cache.Cache, recorder HistoryRecorder, cfg Config, logger *zap.Logger) *SolarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Thresholds == (solar.Thresholds{}) {
		cfg.Thresholds = solar.DefaultThresholds
	}
	var coalescer *requestCoalescer[models.Snapshot]
	if cfg.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer[models.Snapshot](cfg.CoalesceTimeout)
	}
	return &SolarService{
		wind:      wind,
		weather:   weather,
		cache:     c,
		recorder:  recorder,
		cfg:       cfg,
		coalescer: coalescer,
		logger:    logger,
		now:       time.Now,
	}
}

// Sites returns the configured sites in output order.
func (s *SolarService) Sites() []models.Site {
	out := make([]models.Site, len(s.cfg.Sites))
	copy(out, s.cfg.Sites)
	return out
}

// Snapshot returns the current reading for every site, ordered like the configured sites.
// Concurrent callers share one computation. The returned snapshot must not be modified.
func (s *SolarService) Snapshot(ctx context.Context) (models.Snapshot, error) {
	if s.coalescer == nil {
		return s.buildSnapshot(ctx)
	}
	snap, shared, err := s.coalescer.GetOrDo(ctx, snapshotKey, s.buildSnapshot)
	if shared {
		observability.SnapshotCoalescedTotal.Inc()
	}
	return snap, err
}

type siteResult struct {
	cloudCover float64
	fallback   bool
}

func (s *SolarService) buildSnapshot(ctx context.Context) (models.Snapshot, error) {
	logger := reqctx.Logger(ctx, s.logger)
	start := s.now()

	wind, err := s.wind.Latest(ctx)
	if err != nil {
		observability.SnapshotBuildsTotal.WithLabelValues("error").Inc()
		return models.Snapshot{}, fmt.Errorf("solar wind: %w", err)
	}
	// The product is shared by all sites, so an unusable sample fails the snapshot once.
	if _, err := solar.PowerMetrics(wind, 0); err != nil {
		observability.SnapshotBuildsTotal.WithLabelValues("error").Inc()
		return models.Snapshot{}, err
	}

	results := make([]siteResult, len(s.cfg.Sites))
	var wg sync.WaitGroup
	for i, site := range s.cfg.Sites {
		wg.Add(1)
		go func(i int, site models.Site) {
			defer wg.Done()
			data, err := s.CloudCover(ctx, site)
			if err != nil {
				logger.Error("cloud cover lookup failed, using fallback",
					zap.String("location", site.Name),
					zap.String("category", string(client.CategorizeError(err))),
					zap.Error(err),
				)
				observability.SnapshotFallbackSitesTotal.WithLabelValues(observability.MetricLocationLabel(site.Name)).Inc()
				results[i] = siteResult{cloudCover: s.cfg.FallbackCloudCover, fallback: true}
				return
			}
			results[i] = siteResult{cloudCover: data.CloudCover}
		}(i, site)
	}
	wg.Wait()

	var snap models.Snapshot
	records := make([]history.Record, 0, len(s.cfg.Sites))
	for i, site := range s.cfg.Sites {
		r := results[i]
		m, err := solar.PowerMetrics(wind, r.cloudCover)
		if err != nil {
			observability.SnapshotBuildsTotal.WithLabelValues("error").Inc()
			return models.Snapshot{}, err
		}
		reading := solar.Reading(m, r.cloudCover, s.cfg.Thresholds.StatusFor(m.OnGround, r.fallback), r.fallback)
		snap.Set(site.Name, reading)
		records = append(records, history.NewRecord(start, site.Name, reading))
	}

	if s.recorder != nil {
		s.recorder.RecordAll(ctx, records)
	}

	observability.SnapshotBuildsTotal.WithLabelValues("success").Inc()
	logger.Debug("snapshot built", zap.Int("locations", snap.Len()), zap.Duration("duration", s.now().Sub(start)))
	return snap, nil
}

// CloudCover returns cloud cover for site using the cache-aside pattern.
func (s *SolarService) CloudCover(ctx context.Context, site models.Site) (models.CloudCoverData, error) {
	key := site.Name
	logger := reqctx.Logger(ctx, s.logger)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
			logger.Warn("cache get failed", zap.String("location", key), zap.Error(err))
		case ok:
			observability.CacheHitsTotal.WithLabelValues("cloud_cover").Inc()
			return cached, nil
		default:
			observability.CacheMissesTotal.WithLabelValues("cloud_cover").Inc()
		}
	}

	cover, err := s.weather.CloudCover(ctx, site.Place())
	if err != nil {
		return models.CloudCoverData{}, err
	}
	data := models.CloudCoverData{Location: key, CloudCover: cover, Timestamp: s.now().UTC()}

	if s.cache != nil {
		if setErr := s.cache.Set(ctx, key, data, s.cfg.CacheTTL); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
			logger.Warn("cache set failed", zap.String("location", key), zap.Error(setErr))
		}
	}
	return data, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
