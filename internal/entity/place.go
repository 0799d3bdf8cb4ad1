package entity

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SourceApify tags rows produced by the Google-Places crawler import.
const SourceApify = "apify"

// Place is the canonical reconciled row stored in the places table.
// One row exists per identity no matter how many scrapes observed it.
type Place struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	Address      *string         `json:"address,omitempty"`
	City         string          `json:"city"`
	Country      string          `json:"country"`
	Rating       *float64        `json:"rating,omitempty"`
	RatingCount  *int            `json:"rating_count,omitempty"`
	PlaceID      *string         `json:"place_id,omitempty"`
	Website      *string         `json:"website,omitempty"`
	Phone        *string         `json:"phone,omitempty"`
	OpeningHours json.RawMessage `json:"opening_hours,omitempty"`
	Description  *string         `json:"description,omitempty"`
	CoverImage   *string         `json:"cover_image,omitempty"`
	Source       string          `json:"source"`

	SourceDetails SourceDetails `json:"source_details"`
	CustomFields  CustomFields  `json:"custom_fields"`

	CategorySlug *string `json:"category_slug,omitempty"`
	CategoryEn   *string `json:"category_en,omitempty"`
	CategoryZh   *string `json:"category_zh,omitempty"`

	// Descriptive tags injected by the category normalizer (distinct from
	// AITags, which belong to a downstream process).
	Tags []string `json:"tags,omitempty"`

	// Populated by a downstream tagging process, never by this importer.
	AITags []string `json:"ai_tags"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceDetails is the provenance bag, grouped per origin.
type SourceDetails struct {
	Apify ApifyDetails `json:"apify"`
}

// ApifyDetails records where and when the crawler observed the place.
// FID and CID are alternate Google identifiers of lower stability than
// PlaceID; they back the identity-resolution fallback chain.
type ApifyDetails struct {
	ScrapedAt     *time.Time  `json:"scrapedAt,omitempty"`
	SearchString  *string     `json:"searchString,omitempty"`
	Rank          *int        `json:"rank,omitempty"`
	SearchPageURL *string     `json:"searchPageUrl,omitempty"`
	FID           *string     `json:"fid,omitempty"`
	CID           *string     `json:"cid,omitempty"`
	SearchHits    []SearchHit `json:"searchHits,omitempty"`
}

// SearchHit is one provenance entry for a single scrape event.
type SearchHit struct {
	SearchString  string     `json:"searchString"`
	Rank          int        `json:"rank"`
	ScrapedAt     *time.Time `json:"scrapedAt,omitempty"`
	SearchPageURL *string    `json:"searchPageUrl,omitempty"`
}

// Key is the dedup tuple for search hits; no hit is ever dropped, but the
// same observation appended twice collapses to one entry.
func (h SearchHit) Key() string {
	ts := ""
	if h.ScrapedAt != nil {
		ts = h.ScrapedAt.UTC().Format(time.RFC3339Nano)
	}
	return h.SearchString + "\x00" + strconv.Itoa(h.Rank) + "\x00" + ts
}

// CustomFields is the overflow bag for scraped data that has no dedicated
// column. Image keys are derived from random identifiers only; place
// identifiers must never appear inside R2Key or the public URL.
type CustomFields struct {
	PriceRaw          *string         `json:"priceRaw,omitempty"`
	ReviewsTags       map[string]int  `json:"reviewsTags,omitempty"`
	PopularTimes      json.RawMessage `json:"popularTimes,omitempty"`
	CategoriesRaw     []string        `json:"categoriesRaw,omitempty"`
	CategoryNameRaw   *string         `json:"categoryNameRaw,omitempty"`
	SubTitle          *string         `json:"subTitle,omitempty"`
	Neighborhood      *string         `json:"neighborhood,omitempty"`
	Street            *string         `json:"street,omitempty"`
	State             *string         `json:"state,omitempty"`
	PostalCode        *string         `json:"postalCode,omitempty"`
	PermanentlyClosed *bool           `json:"permanentlyClosed,omitempty"`
	R2Key             *string         `json:"r2Key,omitempty"`
	ImageSourceURL    *string         `json:"imageSourceUrl,omitempty"`
	ImageMigratedAt   *time.Time      `json:"imageMigratedAt,omitempty"`
}
