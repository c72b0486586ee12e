package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
)

// ErrSnapshotUnavailable covers every way a snapshot fetch can fail: transport errors,
// non-success status codes and malformed bodies.
var ErrSnapshotUnavailable = errors.New("solar data unavailable")

// SnapshotClient fetches telemetry snapshots from a solar-data endpoint. It never retries.
type SnapshotClient struct {
	url string
	req *requester
}

// NewSnapshotClient returns a client for the endpoint at url.
func NewSnapshotClient(url string, timeout time.Duration) *SnapshotClient {
	return &SnapshotClient{url: url, req: newRequester("snapshot", timeout, NoRetry)}
}

// FetchSnapshot performs one GET and decodes the ordered snapshot.
func (c *SnapshotClient) FetchSnapshot(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.req.getJSON(ctx, c.url, nil, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	return snap, nil
}
