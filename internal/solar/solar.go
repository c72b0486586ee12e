// Package solar derives ground-level power output and site status from solar wind and cloud cover.
package solar

import (
	"errors"
	"math"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
)

// ErrInvalidSolarWind is returned when density·speed·temperature is not positive.
var ErrInvalidSolarWind = errors.New("solar wind product must be positive")

// Status labels emitted by StatusFor.
const (
	StatusOptimal = "optimal"
	StatusNormal  = "normal"
	StatusLow     = "low"
	StatusUnknown = "unknown"
)

// Thresholds are the ground output levels (kW) above which a site is optimal or normal.
type Thresholds struct {
	Optimal float64
	Normal  float64
}

// DefaultThresholds match the production classification.
var DefaultThresholds = Thresholds{Optimal: 70, Normal: 40}

// Metrics is the power estimate for one site.
type Metrics struct {
	AboveClouds float64
	OnGround    float64
	Loss        float64
}

// PowerMetrics estimates output above the clouds as ln(density·speed·temperature/3)·10 − 100,
// attenuated on the ground by the cloud cover percentage.
func PowerMetrics(wind models.SolarWind, cloudCover float64) (Metrics, error) {
	product := wind.Density * wind.Speed * wind.Temperature
	if !(product > 0) || math.IsInf(product, 0) {
		return Metrics{}, ErrInvalidSolarWind
	}
	above := math.Log(product/3)*10 - 100
	ground := above * (1 - cloudCover/100)
	return Metrics{
		AboveClouds: above,
		OnGround:    ground,
		Loss:        above - ground,
	}, nil
}

// StatusFor classifies ground output. Fallback readings are always unknown.
func (t Thresholds) StatusFor(onGround float64, fallback bool) string {
	switch {
	case fallback:
		return StatusUnknown
	case onGround > t.Optimal:
		return StatusOptimal
	case onGround > t.Normal:
		return StatusNormal
	default:
		return StatusLow
	}
}

// Reading assembles the API reading for a site.
func Reading(m Metrics, cloudCover float64, status string, fallback bool) models.LocationReading {
	return models.LocationReading{
		Status:                 status,
		CloudCover:             cloudCover,
		PowerOutputOnGround:    m.OnGround,
		PowerOutputAboveClouds: m.AboveClouds,
		PowerLoss:              m.Loss,
		IsFallback:             fallback,
	}
}
