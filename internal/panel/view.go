package panel

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
)

// ErrorMessage is the single message shown when a refresh fails.
const ErrorMessage = "Failed to load solar power data. Please try again later."

// PresentationClass is the indicator a status label maps to.
type PresentationClass string

const (
	ClassGood     PresentationClass = "good"
	ClassModerate PresentationClass = "moderate"
	ClassBad      PresentationClass = "bad"
	ClassUnknown  PresentationClass = "unknown"
)

// CSS returns the indicator's stylesheet class.
func (c PresentationClass) CSS() string {
	switch c {
	case ClassGood:
		return "bg-green-500"
	case ClassModerate:
		return "bg-yellow-500"
	case ClassBad:
		return "bg-red-500"
	default:
		return "bg-gray-500"
	}
}

// Classify maps a status label to its presentation class, ignoring case.
// Any label other than optimal, normal or low is unknown.
func Classify(status string) PresentationClass {
	switch strings.ToLower(status) {
	case "optimal":
		return ClassGood
	case "normal":
		return ClassModerate
	case "low":
		return ClassBad
	default:
		return ClassUnknown
	}
}

// Card is the display form of one location.
type Card struct {
	Name        string            `json:"name"`
	Status      string            `json:"status"`
	Class       PresentationClass `json:"class"`
	CSSClass    string            `json:"cssClass"`
	CloudCover  string            `json:"cloudCover"`
	PowerOutput string            `json:"powerOutput"`
}

// NewCard formats a reading for display. The status label is shown as received.
func NewCard(name string, r models.LocationReading) Card {
	class := Classify(r.Status)
	return Card{
		Name:        name,
		Status:      r.Status,
		Class:       class,
		CSSClass:    class.CSS(),
		CloudCover:  FormatCloudCover(r.CloudCover),
		PowerOutput: FormatPower(r.PowerOutputOnGround),
	}
}

// FormatCloudCover rounds half away from zero to a whole percentage.
func FormatCloudCover(v float64) string {
	return fmt.Sprintf("%d%%", int64(math.Round(v)))
}

// FormatPower always shows two decimals.
func FormatPower(kw float64) string {
	return fmt.Sprintf("%.2f kW", kw)
}

// BuildCards returns one card per snapshot entry in snapshot order.
func BuildCards(snap models.Snapshot) []Card {
	entries := snap.Entries()
	cards := make([]Card, 0, len(entries))
	for _, e := range entries {
		cards = append(cards, NewCard(e.Name, e.Reading))
	}
	return cards
}

// View is what the panel displays: either cards or a single error message.
// LastUpdated is zero until the first successful refresh.
type View struct {
	Cards       []Card
	Error       string
	LastUpdated time.Time
}

// HasError reports whether the view shows the error message instead of cards.
func (v View) HasError() bool {
	return v.Error != ""
}

// Result is the outcome of one snapshot fetch.
type Result struct {
	Snapshot models.Snapshot
	Err      error
}

// Apply returns the view after result. On success the cards are rebuilt and LastUpdated
// becomes now; on failure the cards are replaced by the error and LastUpdated is kept.
func Apply(prev View, result Result, now time.Time) View {
	if result.Err != nil {
		return View{Error: ErrorMessage, LastUpdated: prev.LastUpdated}
	}
	return View{Cards: BuildCards(result.Snapshot), LastUpdated: now}
}
