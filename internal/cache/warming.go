package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/observability"
)

// CloudCoverFetcher is implemented by the service layer; it reads through the cache.
// Used by CacheWarmer to avoid a dependency on the service package.
type CloudCoverFetcher interface {
	CloudCover(ctx context.Context, site models.Site) (models.CloudCoverData, error)
}

// CacheWarmer prefetches cloud cover for every site so the first snapshot is served warm.
type CacheWarmer struct {
	fetcher CloudCoverFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher CloudCoverFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every site concurrently. Returns the joined errors of failed sites.
func (w *CacheWarmer) Warm(ctx context.Context, sites []models.Site) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(sites)))
	}
	var wg sync.WaitGroup
	errs := make([]error, len(sites))
	for i, site := range sites {
		wg.Add(1)
		go func(i int, site models.Site) {
			defer wg.Done()
			if _, err := w.fetcher.CloudCover(ctx, site); err != nil {
				errs[i] = fmt.Errorf("warm %s: %w", site.Name, err)
			}
		}(i, site)
	}
	wg.Wait()

	err := errors.Join(errs...)
	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("locations", len(sites)), zap.Int("errors", failed), zap.Float64("duration_seconds", duration))
	}
	if err != nil {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", err)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, sites []models.Site, interval time.Duration) error {
	if err := w.Warm(ctx, sites); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, sites); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
