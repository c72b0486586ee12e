package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/circuitbreaker"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
)

// DefaultSolarWindURL is the NOAA SWPC 5-minute plasma feed.
const DefaultSolarWindURL = "https://services.swpc.noaa.gov/products/solar-wind/plasma-5-minute.json"

// ErrNoSolarWindSample is returned when no row of the feed carries usable numbers.
var ErrNoSolarWindSample = errors.New("no usable solar wind sample")

// SolarWindClient reads the latest solar wind plasma sample.
type SolarWindClient struct {
	url string
	req *requester
}

// NewSolarWindClient returns a client for the NOAA plasma feed at url.
func NewSolarWindClient(url string, timeout time.Duration, retry RetryPolicy) *SolarWindClient {
	if url == "" {
		url = DefaultSolarWindURL
	}
	return &SolarWindClient{url: url, req: newRequester("noaa", timeout, retry)}
}

// SetCircuitBreaker guards every NOAA call with cb.
func (c *SolarWindClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.req.breaker = cb
}

// Latest returns the newest row whose density, speed and temperature are all plain decimals.
// The feed is an array of string rows; the first row is a header.
func (c *SolarWindClient) Latest(ctx context.Context) (models.SolarWind, error) {
	var rows [][]interface{}
	if err := c.req.getJSON(ctx, c.url, nil, &rows); err != nil {
		return models.SolarWind{}, fmt.Errorf("fetch solar wind: %w", err)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if sample, ok := parsePlasmaRow(rows[i]); ok {
			return sample, nil
		}
	}
	return models.SolarWind{}, ErrNoSolarWindSample
}

func parsePlasmaRow(row []interface{}) (models.SolarWind, bool) {
	if len(row) < 4 {
		return models.SolarWind{}, false
	}
	var vals [3]float64
	for i := 1; i <= 3; i++ {
		s, ok := row[i].(string)
		if !ok || !isPlainDecimal(s) {
			return models.SolarWind{}, false
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.SolarWind{}, false
		}
		vals[i-1] = v
	}
	observedAt, _ := row[0].(string)
	return models.SolarWind{
		ObservedAt:  observedAt,
		Density:     vals[0],
		Speed:       vals[1],
		Temperature: vals[2],
	}, true
}

// isPlainDecimal reports whether s is ASCII digits with at most one dot and at least one digit.
func isPlainDecimal(s string) bool {
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
			if dots > 1 {
				return false
			}
		default:
			return false
		}
	}
	return digits > 0
}
