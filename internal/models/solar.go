package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingField is returned when a location reading lacks a field the panel needs.
var ErrMissingField = errors.New("missing field")

// LocationReading is one site's status, cloud cover and power output at snapshot time.
type LocationReading struct {
	Status                 string  `json:"status"`
	CloudCover             float64 `json:"cloud_cover"`
	PowerOutputOnGround    float64 `json:"power_output_on_ground"`
	PowerOutputAboveClouds float64 `json:"power_output_above_clouds"`
	PowerLoss              float64 `json:"power_loss"`
	IsFallback             bool    `json:"is_fallback"`
}

// UnmarshalJSON requires status, cloud_cover and power_output_on_ground to be present
// and correctly typed. The remaining fields are optional.
func (r *LocationReading) UnmarshalJSON(data []byte) error {
	var wire struct {
		Status                 *string  `json:"status"`
		CloudCover             *float64 `json:"cloud_cover"`
		PowerOutputOnGround    *float64 `json:"power_output_on_ground"`
		PowerOutputAboveClouds float64  `json:"power_output_above_clouds"`
		PowerLoss              float64  `json:"power_loss"`
		IsFallback             bool     `json:"is_fallback"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch {
	case wire.Status == nil:
		return fmt.Errorf("%w: status", ErrMissingField)
	case wire.CloudCover == nil:
		return fmt.Errorf("%w: cloud_cover", ErrMissingField)
	case wire.PowerOutputOnGround == nil:
		return fmt.Errorf("%w: power_output_on_ground", ErrMissingField)
	}
	*r = LocationReading{
		Status:                 *wire.Status,
		CloudCover:             *wire.CloudCover,
		PowerOutputOnGround:    *wire.PowerOutputOnGround,
		PowerOutputAboveClouds: wire.PowerOutputAboveClouds,
		PowerLoss:              wire.PowerLoss,
		IsFallback:             wire.IsFallback,
	}
	return nil
}

// Site is a monitored installation location.
type Site struct {
	Name    string  `json:"name" yaml:"name"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lng     float64 `json:"lng" yaml:"lng"`
	PlaceID string  `json:"placeId,omitempty" yaml:"place_id"`
}

// Place returns the Meteosource place id for the site, falling back to its name.
func (s Site) Place() string {
	if s.PlaceID != "" {
		return s.PlaceID
	}
	return s.Name
}

// SolarWind is one NOAA plasma sample.
type SolarWind struct {
	ObservedAt  string  `json:"observedAt"`
	Density     float64 `json:"density"`
	Speed       float64 `json:"speed"`
	Temperature float64 `json:"temperature"`
}

// CloudCoverData is the cached cloud cover for one location.
type CloudCoverData struct {
	Location   string    `json:"location"`
	CloudCover float64   `json:"cloudCover"`
	Timestamp  time.Time `json:"timestamp"`
}
