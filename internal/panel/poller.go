package panel

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Poller refreshes a panel on a fixed interval.
type Poller struct {
	panel    *Panel
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a Poller. An interval of 0 disables periodic refresh.
func NewPoller(p *Panel, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{panel: p, interval: interval, logger: logger}
}

// Run refreshes every interval until ctx is done. It returns immediately when disabled.
func (pl *Poller) Run(ctx context.Context) {
	if pl.interval <= 0 {
		return
	}
	ticker := time.NewTicker(pl.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pl.panel.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) && ctx.Err() == nil {
				pl.logger.Warn("periodic panel refresh failed", zap.Error(err))
			}
		}
	}
}
