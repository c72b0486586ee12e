// Package panel holds the telemetry panel: one status card per location, refreshed from a
// snapshot source.
package panel

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/observability"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/reqctx"
)

// ErrSuperseded is returned by Refresh when a newer refresh started before this one finished.
// Its result is discarded.
var ErrSuperseded = errors.New("refresh superseded by a newer request")

// Status is the fetch state of the panel.
type Status int

const (
	StatusIdle Status = iota
	StatusFetching
)

func (s Status) String() string {
	if s == StatusFetching {
		return "fetching"
	}
	return "idle"
}

// Fetcher returns the current telemetry snapshot.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (models.Snapshot, error)
}

// State is a point-in-time copy of the panel.
type State struct {
	Status       Status
	Generation   uint64
	View         View
	LastSnapshot *models.Snapshot
}

// Panel owns the display state. Refresh may be called concurrently; the newest call wins.
type Panel struct {
	fetcher Fetcher
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time

	mu           sync.Mutex
	status       Status
	generation   uint64
	cancel       context.CancelFunc
	view         View
	lastSnapshot *models.Snapshot
}

// New creates an idle panel with an empty view. loc is the zone LastUpdated is shown in.
func New(fetcher Fetcher, loc *time.Location, logger *zap.Logger) *Panel {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Panel{
		fetcher: fetcher,
		logger:  logger,
		loc:     loc,
		now:     time.Now,
		view:    View{Cards: []Card{}},
	}
}

// Refresh fetches a snapshot and replaces the view. Starting a refresh cancels the one in
// flight; a refresh whose generation is no longer the newest returns ErrSuperseded without
// touching the view. A failed fetch shows the error message and returns the fetch error.
func (p *Panel) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.generation++
	gen := p.generation
	fetchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.status = StatusFetching
	p.mu.Unlock()
	defer cancel()

	snap, err := p.fetcher.FetchSnapshot(fetchCtx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		observability.PanelRefreshesTotal.WithLabelValues("superseded").Inc()
		return ErrSuperseded
	}
	p.cancel = nil
	p.status = StatusIdle
	p.view = Apply(p.view, Result{Snapshot: snap, Err: err}, p.now().In(p.loc))

	if err != nil {
		observability.PanelRefreshesTotal.WithLabelValues("failure").Inc()
		reqctx.Logger(ctx, p.logger).Error("error fetching solar data", zap.Uint64("generation", gen), zap.Error(err))
		return err
	}
	p.lastSnapshot = &snap
	observability.PanelRefreshesTotal.WithLabelValues("success").Inc()
	reqctx.Logger(ctx, p.logger).Debug("panel refreshed", zap.Uint64("generation", gen), zap.Int("cards", len(p.view.Cards)))
	return nil
}

// State returns a copy of the current state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.view
	v.Cards = make([]Card, len(p.view.Cards))
	copy(v.Cards, p.view.Cards)
	return State{
		Status:       p.status,
		Generation:   p.generation,
		View:         v,
		LastSnapshot: p.lastSnapshot,
	}
}

// View returns a copy of the current view.
func (p *Panel) View() View {
	return p.State().View
}

// Location is the zone LastUpdated is expressed in.
func (p *Panel) Location() *time.Location {
	return p.loc
}
