package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/models"
)

// Location name bounds, in runes.
const (
	MinLocationLen = 2
	MaxLocationLen = 100
)

var (
	ErrLocationEmpty        = errors.New("location is required")
	ErrLocationTooShort     = errors.New("location too short")
	ErrLocationTooLong      = errors.New("location too long")
	ErrLocationInvalidChars = errors.New("location contains invalid characters")
	ErrDuplicateSite        = errors.New("duplicate site name")
	ErrSiteCoordinates      = errors.New("site coordinates out of range")
)

// ValidateLocation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to letters (Unicode), digits, space, comma, hyphen, apostrophe and period.
// Returns the trimmed string or an error suitable for 400 INVALID_LOCATION responses.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

// ValidateSites checks every configured site: a valid, unique name and lat/lng in range.
func ValidateSites(sites []models.Site) error {
	seen := make(map[string]bool, len(sites))
	for i, s := range sites {
		name, err := ValidateLocation(s.Name, MinLocationLen, MaxLocationLen)
		if err != nil {
			return fmt.Errorf("sites[%d] %q: %w", i, s.Name, err)
		}
		if name != s.Name {
			return fmt.Errorf("sites[%d] %q: %w", i, s.Name, ErrLocationInvalidChars)
		}
		if seen[name] {
			return fmt.Errorf("sites[%d] %q: %w", i, name, ErrDuplicateSite)
		}
		seen[name] = true
		if s.Lat < -90 || s.Lat > 90 || s.Lng < -180 || s.Lng > 180 {
			return fmt.Errorf("sites[%d] %q: %w", i, name, ErrSiteCoordinates)
		}
	}
	return nil
}

func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'', '.':
		return true
	}
	return false
}
