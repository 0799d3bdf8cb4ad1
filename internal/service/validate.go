package service

import (
	"fmt"
	"strings"

	"github.com/wanderapp/places-importer/internal/dto"
)

// RejectionError marks a record as structurally unusable. Rejection is
// terminal for the record within a run: it is counted and excluded from
// every later stage, never retried.
type RejectionError struct {
	Field  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("record rejected: %s: %s", e.Field, e.Reason)
}

// ValidRecord is a raw record that passed validation, together with the
// coerced values the mapper relies on.
type ValidRecord struct {
	Raw     *dto.RawScrapedRecord
	Lat     float64
	Lng     float64
	Country string
}

// ValidateRecord coerces repairable geographic values and then checks the
// required fields: place identifier, city, country code, latitude and
// longitude. Coercion failure is a rejection like any missing field.
func ValidateRecord(rec *dto.RawScrapedRecord) (*ValidRecord, error) {
	if rec == nil {
		return nil, &RejectionError{Field: "record", Reason: "nil record"}
	}
	if rec.PlaceID == nil || strings.TrimSpace(*rec.PlaceID) == "" {
		return nil, &RejectionError{Field: "placeId", Reason: "missing place identifier"}
	}
	if rec.City == nil || strings.TrimSpace(*rec.City) == "" {
		return nil, &RejectionError{Field: "city", Reason: "missing city"}
	}

	country, err := coerceCountryCode(rec.CountryCode)
	if err != nil {
		return nil, err
	}

	lat, lng, err := coerceCoordinates(rec.Location)
	if err != nil {
		return nil, err
	}

	return &ValidRecord{Raw: rec, Lat: lat, Lng: lng, Country: country}, nil
}

func coerceCountryCode(raw *string) (string, error) {
	if raw == nil {
		return "", &RejectionError{Field: "countryCode", Reason: "missing country code"}
	}
	code := strings.ToUpper(strings.TrimSpace(*raw))
	if len(code) != 2 || !isAlpha(code) {
		return "", &RejectionError{Field: "countryCode", Reason: fmt.Sprintf("not an ISO alpha-2 code: %q", *raw)}
	}
	return code, nil
}

// coerceCoordinates repairs the two malformations the crawler is known to
// produce: numeric-string encodings and swapped lat/lng pairs.
func coerceCoordinates(loc *dto.Location) (float64, float64, error) {
	if loc == nil {
		return 0, 0, &RejectionError{Field: "location", Reason: "missing coordinates"}
	}

	lat, err := loc.Lat.Float64()
	if err != nil {
		return 0, 0, &RejectionError{Field: "location.lat", Reason: fmt.Sprintf("not numeric: %q", loc.Lat.String())}
	}
	lng, err := loc.Lng.Float64()
	if err != nil {
		return 0, 0, &RejectionError{Field: "location.lng", Reason: fmt.Sprintf("not numeric: %q", loc.Lng.String())}
	}

	if (lat < -90 || lat > 90) && lng >= -90 && lng <= 90 {
		lat, lng = lng, lat
	}
	if lat < -90 || lat > 90 {
		return 0, 0, &RejectionError{Field: "location.lat", Reason: fmt.Sprintf("latitude out of range: %v", lat)}
	}
	if lng < -180 || lng > 180 {
		return 0, 0, &RejectionError{Field: "location.lng", Reason: fmt.Sprintf("longitude out of range: %v", lng)}
	}

	return lat, lng, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
