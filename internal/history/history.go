// Package history persists per-location solar readings to one or more sinks.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/observability"
)

// TimestampLayout formats record datetimes (UTC, microsecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000000"

var ErrUnknownSink = errors.New("unknown history sink")

// Record is one saved reading. Field names follow the AppSheet table columns.
type Record struct {
	ID                     string  `json:"ID"`
	Datetime               string  `json:"datetime"`
	Location               string  `json:"location"`
	CloudCover             float64 `json:"cloud_cover"`
	PowerOutputAboveClouds float64 `json:"power_output_above_clouds"`
	PowerOutputOnGround    float64 `json:"power_output_on_ground"`
	Status                 string  `json:"status"`
	SolarPowerStatus       string  `json:"solar_power_status"`
	IsFallback             bool    `json:"is_fallback"`
}

// NewRecord builds the record for one location reading taken at ts.
// The ID is "<datetime>_<location with spaces replaced by underscores>".
func NewRecord(ts time.Time, location string, r models.LocationReading) Record {
	stamp := ts.UTC().Format(TimestampLayout)
	return Record{
		ID:                     stamp + "_" + strings.ReplaceAll(location, " ", "_"),
		Datetime:               stamp,
		Location:               location,
		CloudCover:             r.CloudCover,
		PowerOutputAboveClouds: r.PowerOutputAboveClouds,
		PowerOutputOnGround:    r.PowerOutputOnGround,
		Status:                 r.Status,
		SolarPowerStatus:       r.Status,
		IsFallback:             r.IsFallback,
	}
}

// Sink stores records.
type Sink interface {
	Name() string
	Save(ctx context.Context, rec Record) error
	Close() error
}

// Reader returns the most recent records for a location, newest first.
type Reader interface {
	Recent(ctx context.Context, location string, limit int) ([]Record, error)
}

// DaylightChecker reports whether saving is currently allowed. Implementations return
// true alongside any error.
type DaylightChecker interface {
	IsDaylight(ctx context.Context) (bool, error)
}

// Recorder fans records out to every sink, gated by daylight.
type Recorder struct {
	sinks    []Sink
	daylight DaylightChecker
	logger   *zap.Logger
}

// NewRecorder creates a Recorder. A nil daylight checker saves at all hours.
func NewRecorder(sinks []Sink, daylight DaylightChecker, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sinks: sinks, daylight: daylight, logger: logger}
}

// RecordAll saves records to every sink. Daylight is checked once per batch; failures are
// logged and counted, never returned.
func (r *Recorder) RecordAll(ctx context.Context, records []Record) {
	if r == nil || len(r.sinks) == 0 || len(records) == 0 {
		return
	}
	if r.daylight != nil {
		ok, err := r.daylight.IsDaylight(ctx)
		if err != nil {
			r.logger.Warn("daylight check failed, assuming daylight", zap.Error(err))
		}
		if !ok {
			observability.HistoryBatchesSkippedTotal.Inc()
			for _, rec := range records {
				r.logger.Info("[SKIPPED] not saving data during nighttime hours", zap.String("location", rec.Location))
			}
			return
		}
	}

	for _, sink := range r.sinks {
		for _, rec := range records {
			if err := sink.Save(ctx, rec); err != nil {
				observability.HistorySavesTotal.WithLabelValues(sink.Name(), "failure").Inc()
				r.logger.Error("[FAILED] history save",
					zap.String("sink", sink.Name()),
					zap.String("location", rec.Location),
					zap.String("id", rec.ID),
					zap.Error(err),
				)
				continue
			}
			observability.HistorySavesTotal.WithLabelValues(sink.Name(), "success").Inc()
			r.logger.Debug("[SUCCESS] history saved", zap.String("sink", sink.Name()), zap.String("location", rec.Location))
		}
	}
}

// Close closes every sink and joins their errors.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
