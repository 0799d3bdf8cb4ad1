package service

import (
	"net/url"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/net/idna"

	"github.com/wanderapp/places-importer/internal/dto"
	"github.com/wanderapp/places-importer/internal/entity"
)

var scrapedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// MapRecord projects a validated raw record into the canonical place
// shape. Pure: every non-null source value lands in exactly one field or
// metadata bag, and nothing else is touched.
func MapRecord(v *ValidRecord) *entity.Place {
	rec := v.Raw

	p := &entity.Place{
		Name:      strings.TrimSpace(rec.Title),
		Latitude:  v.Lat,
		Longitude: v.Lng,
		City:      strings.TrimSpace(*rec.City),
		Country:   v.Country,
		Source:    entity.SourceApify,
		AITags:    []string{},
	}

	p.Address = normalizeString(rec.Address)
	p.Rating = rec.TotalScore
	p.RatingCount = rec.ReviewsCount
	p.PlaceID = normalizeString(rec.PlaceID)
	p.Website = normalizeWebsite(rec.Website)
	p.Phone = pickPhone(rec.Phone, rec.PhoneUnformatted, v.Country)
	p.OpeningHours = rec.OpeningHours
	p.Description = normalizeString(rec.Description)

	scrapedAt := parseScrapedAt(rec.ScrapedAt)
	p.SourceDetails.Apify = entity.ApifyDetails{
		ScrapedAt:     scrapedAt,
		SearchString:  normalizeString(rec.SearchString),
		Rank:          rec.Rank,
		SearchPageURL: normalizeString(rec.SearchPageURL),
		FID:           normalizeString(rec.FID),
		CID:           normalizeString(rec.CID),
	}
	p.SourceDetails.Apify.SearchHits = []entity.SearchHit{seedSearchHit(rec, scrapedAt)}

	p.CustomFields = entity.CustomFields{
		PriceRaw:          normalizeString(rec.Price),
		CategoryNameRaw:   normalizeString(rec.CategoryName),
		PopularTimes:      rec.PopularTimesHistogram,
		SubTitle:          normalizeString(rec.SubTitle),
		Neighborhood:      normalizeString(rec.Neighborhood),
		Street:            normalizeString(rec.Street),
		State:             normalizeString(rec.State),
		PostalCode:        normalizeString(rec.PostalCode),
		PermanentlyClosed: rec.PermanentlyClosed,
	}
	if len(rec.Categories) > 0 {
		p.CustomFields.CategoriesRaw = append([]string(nil), rec.Categories...)
	}
	if len(rec.ReviewsTags) > 0 {
		tags := make(map[string]int, len(rec.ReviewsTags))
		for _, tag := range rec.ReviewsTags {
			tags[tag.Title] = tag.Count
		}
		p.CustomFields.ReviewsTags = tags
	}

	return p
}

func seedSearchHit(rec *dto.RawScrapedRecord, scrapedAt *time.Time) entity.SearchHit {
	hit := entity.SearchHit{ScrapedAt: scrapedAt}
	if rec.SearchString != nil {
		hit.SearchString = strings.TrimSpace(*rec.SearchString)
	}
	if rec.Rank != nil {
		hit.Rank = *rec.Rank
	}
	hit.SearchPageURL = normalizeString(rec.SearchPageURL)
	return hit
}

// pickPhone prefers the unformatted variant over the formatted one, then
// normalizes the chosen value to E164. The verbatim string is kept when
// the number library cannot parse it, so no value is silently dropped.
func pickPhone(formatted, unformatted *string, region string) *string {
	chosen := normalizeString(unformatted)
	if chosen == nil {
		chosen = normalizeString(formatted)
	}
	if chosen == nil {
		return nil
	}

	number, err := phonenumbers.Parse(*chosen, region)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return chosen
	}
	e164 := phonenumbers.Format(number, phonenumbers.E164)
	return &e164
}

// normalizeWebsite lowercases and punycodes the host so the same site
// scraped with unicode and ASCII hosts merges cleanly. Unparsable values
// pass through verbatim.
func normalizeWebsite(raw *string) *string {
	value := normalizeString(raw)
	if value == nil {
		return nil
	}

	candidate := *value
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return value
	}
	host, err := idna.Lookup.ToASCII(strings.ToLower(u.Hostname()))
	if err != nil {
		return value
	}
	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	normalized := u.String()
	return &normalized
}

func parseScrapedAt(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil
	}
	for _, layout := range scrapedAtLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func normalizeString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
