package dto

import "encoding/json"

// RawScrapedRecord is one item from the Google-Places crawler dataset.
// The crawler emits a full snapshot per scrape hit, so the same physical
// place shows up many times with no update semantics of its own; numeric
// fields occasionally arrive string-encoded, hence json.Number.
type RawScrapedRecord struct {
	Title        string  `json:"title"`
	SubTitle     *string `json:"subTitle,omitempty"`
	Description  *string `json:"description,omitempty"`
	Price        *string `json:"price,omitempty"`
	CategoryName *string `json:"categoryName,omitempty"`

	Address      *string `json:"address,omitempty"`
	Street       *string `json:"street,omitempty"`
	Neighborhood *string `json:"neighborhood,omitempty"`
	City         *string `json:"city,omitempty"`
	State        *string `json:"state,omitempty"`
	PostalCode   *string `json:"postalCode,omitempty"`
	CountryCode  *string `json:"countryCode,omitempty"`

	Location *Location `json:"location,omitempty"`

	TotalScore        *float64 `json:"totalScore,omitempty"`
	ReviewsCount      *int     `json:"reviewsCount,omitempty"`
	PermanentlyClosed *bool    `json:"permanentlyClosed,omitempty"`

	PlaceID *string `json:"placeId,omitempty"`
	CID     *string `json:"cid,omitempty"`
	FID     *string `json:"fid,omitempty"`

	Categories []string `json:"categories,omitempty"`

	Website          *string `json:"website,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	PhoneUnformatted *string `json:"phoneUnformatted,omitempty"`

	// Opaque structured payloads passed through without reinterpretation.
	OpeningHours          json.RawMessage `json:"openingHours,omitempty"`
	PopularTimesHistogram json.RawMessage `json:"popularTimesHistogram,omitempty"`

	ReviewsTags []ReviewTag `json:"reviewsTags,omitempty"`

	ImageURL *string `json:"imageUrl,omitempty"`

	SearchString  *string `json:"searchString,omitempty"`
	Rank          *int    `json:"rank,omitempty"`
	SearchPageURL *string `json:"searchPageUrl,omitempty"`
	ScrapedAt     *string `json:"scrapedAt,omitempty"`
}

// Location holds the scraped coordinate pair. Values are json.Number so
// string-encoded coordinates survive decoding and can be coerced later.
type Location struct {
	Lat json.Number `json:"lat"`
	Lng json.Number `json:"lng"`
}

// ReviewTag is one aggregated review keyword with its occurrence count.
type ReviewTag struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}
