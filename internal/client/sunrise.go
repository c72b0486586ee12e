package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DefaultSunriseURL is the sunrisesunset.io JSON endpoint.
const DefaultSunriseURL = "https://api.sunrisesunset.io/json"

const clockLayout = "3:04:05 PM"

// SunriseClient decides whether the current time falls between sunrise and sunset.
type SunriseClient struct {
	url      string
	lat, lng float64
	loc      *time.Location
	req      *requester
	now      func() time.Time
}

// NewSunriseClient returns a client for the given coordinates; loc is the zone the
// returned clock times are expressed in.
func NewSunriseClient(apiURL string, lat, lng float64, loc *time.Location, timeout time.Duration) *SunriseClient {
	if apiURL == "" {
		apiURL = DefaultSunriseURL
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SunriseClient{
		url: apiURL,
		lat: lat,
		lng: lng,
		loc: loc,
		req: newRequester("sunrise", timeout, NoRetry),
		now: time.Now,
	}
}

type sunriseResponse struct {
	Results struct {
		Sunrise string `json:"sunrise"`
		Sunset  string `json:"sunset"`
	} `json:"results"`
}

// IsDaylight reports whether now lies within [sunrise, sunset]. When the lookup fails it
// returns true together with the error, so callers default to allowing work.
func (c *SunriseClient) IsDaylight(ctx context.Context) (bool, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(c.lat, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(c.lng, 'f', -1, 64))

	var resp sunriseResponse
	if err := c.req.getJSON(ctx, c.url, params, &resp); err != nil {
		return true, fmt.Errorf("fetch sunrise: %w", err)
	}
	sunrise, err := time.Parse(clockLayout, resp.Results.Sunrise)
	if err != nil {
		return true, fmt.Errorf("parse sunrise: %w", err)
	}
	sunset, err := time.Parse(clockLayout, resp.Results.Sunset)
	if err != nil {
		return true, fmt.Errorf("parse sunset: %w", err)
	}
	now := secondsOfDay(c.now().In(c.loc))
	return secondsOfDay(sunrise) <= now && now <= secondsOfDay(sunset), nil
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
