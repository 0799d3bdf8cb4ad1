package service

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wanderapp/places-importer/internal/dto"
)

func validRaw() *dto.RawScrapedRecord {
	return &dto.RawScrapedRecord{
		Title:       "Cafe Sonder",
		PlaceID:     strPtr("ChIJabc123"),
		City:        strPtr("Copenhagen"),
		CountryCode: strPtr("dk"),
		Location:    &dto.Location{Lat: json.Number("55.6761"), Lng: json.Number("12.5683")},
	}
}

func TestValidateRecordAccepts(t *testing.T) {
	v, err := ValidateRecord(validRaw())
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if v.Lat != 55.6761 || v.Lng != 12.5683 {
		t.Fatalf("unexpected coordinates: %v, %v", v.Lat, v.Lng)
	}
	if v.Country != "DK" {
		t.Fatalf("expected uppercased country code, got %q", v.Country)
	}
}

func TestValidateRecordRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*dto.RawScrapedRecord)
	}{
		{"missing placeId", func(r *dto.RawScrapedRecord) { r.PlaceID = nil }},
		{"empty placeId", func(r *dto.RawScrapedRecord) { r.PlaceID = strPtr("  ") }},
		{"missing city", func(r *dto.RawScrapedRecord) { r.City = nil }},
		{"missing country", func(r *dto.RawScrapedRecord) { r.CountryCode = nil }},
		{"bad country", func(r *dto.RawScrapedRecord) { r.CountryCode = strPtr("Denmark") }},
		{"missing location", func(r *dto.RawScrapedRecord) { r.Location = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRaw()
			tc.mutate(rec)
			_, err := ValidateRecord(rec)
			var rejection *RejectionError
			if !errors.As(err, &rejection) {
				t.Fatalf("expected RejectionError, got %v", err)
			}
		})
	}
}

func TestValidateRecordCoercesNumericStrings(t *testing.T) {
	rec := validRaw()
	rec.Location = &dto.Location{Lat: json.Number("55.6761"), Lng: json.Number("12.5683")}

	v, err := ValidateRecord(rec)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if v.Lat != 55.6761 {
		t.Fatalf("expected coerced latitude, got %v", v.Lat)
	}
}

func TestValidateRecordRepairsSwappedCoordinates(t *testing.T) {
	rec := validRaw()
	// lat/lng arrived swapped: 12.5 is a valid latitude but 120.2 is not.
	rec.Location = &dto.Location{Lat: json.Number("120.2"), Lng: json.Number("30.5")}

	v, err := ValidateRecord(rec)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if v.Lat != 30.5 || v.Lng != 120.2 {
		t.Fatalf("expected swapped pair repaired, got lat=%v lng=%v", v.Lat, v.Lng)
	}
}

func TestValidateRecordRejectsUnrepairableCoordinates(t *testing.T) {
	rec := validRaw()
	rec.Location = &dto.Location{Lat: json.Number("500"), Lng: json.Number("500")}
	if _, err := ValidateRecord(rec); err == nil {
		t.Fatalf("expected rejection for out-of-range pair")
	}

	rec = validRaw()
	rec.Location = &dto.Location{Lat: json.Number("north"), Lng: json.Number("12.5")}
	if _, err := ValidateRecord(rec); err == nil {
		t.Fatalf("expected rejection for non-numeric latitude")
	}
}
