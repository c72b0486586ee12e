package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/circuitbreaker"
)

// DefaultMeteosourceURL is the free-tier point forecast endpoint.
const DefaultMeteosourceURL = "https://www.meteosource.com/api/v1/free/point"

// CloudCoverClient returns the current cloud cover percentage for a place.
type CloudCoverClient interface {
	CloudCover(ctx context.Context, placeID string) (float64, error)
}

// MeteosourceClient reads current conditions from Meteosource.
type MeteosourceClient struct {
	apiKey string
	url    string
	req    *requester
}

// NewMeteosourceClient returns a client for the point endpoint at apiURL.
func NewMeteosourceClient(apiKey, apiURL string, timeout time.Duration, retry RetryPolicy) (*MeteosourceClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if apiURL == "" {
		apiURL = DefaultMeteosourceURL
	}
	return &MeteosourceClient{
		apiKey: apiKey,
		url:    apiURL,
		req:    newRequester("meteosource", timeout, retry),
	}, nil
}

// SetCircuitBreaker guards every Meteosource call with cb.
func (c *MeteosourceClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.req.breaker = cb
}

type meteosourceResponse struct {
	Current struct {
		CloudCover *float64 `json:"cloud_cover"`
	} `json:"current"`
}

// CloudCover returns current.cloud_cover for placeID.
func (c *MeteosourceClient) CloudCover(ctx context.Context, placeID string) (float64, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("sections", "all")
	params.Set("timezone", "UTC")
	params.Set("language", "en")
	params.Set("units", "metric")
	params.Set("key", c.apiKey)

	var resp meteosourceResponse
	if err := c.req.getJSON(ctx, c.url, params, &resp); err != nil {
		return 0, fmt.Errorf("fetch weather for %s: %w", placeID, err)
	}
	if resp.Current.CloudCover == nil {
		return 0, fmt.Errorf("parse response: missing current.cloud_cover for %s", placeID)
	}
	return *resp.Current.CloudCover, nil
}
