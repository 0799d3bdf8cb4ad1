package service

import (
	"encoding/json"
	"time"

	"github.com/wanderapp/places-importer/internal/entity"
)

// mergePolicy tags how one field combines an existing and an incoming
// value. The four policies are fixed; per-field behavior is a table edit.
type mergePolicy string

const (
	policyNonNullOverwrite mergePolicy = "non-null-overwrite"
	policyTakeGreater      mergePolicy = "take-greater"
	policyTakeNewer        mergePolicy = "take-newer"
	policyAppend           mergePolicy = "append"
)

// mergeRule binds a field name to its policy and the function applying it.
// apply writes the merged value into dst given both sides.
type mergeRule struct {
	field  string
	policy mergePolicy
	apply  func(dst, existing, incoming *entity.Place)
}

// mergeRules is the full per-field policy table, applied in order.
var mergeRules = []mergeRule{
	{"name", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.Name = mergeNonEmpty(ex.Name, in.Name)
	}},
	{"latitude", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.Latitude = in.Latitude
	}},
	{"longitude", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.Longitude = in.Longitude
	}},
	{"address", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.Address = mergeStringPtr(ex.Address, in.Address)
	}},
	{"city", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.City = mergeNonEmpty(ex.City, in.City)
	}},
	{"country", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.Country = mergeNonEmpty(ex.Country, in.Country)
	}},
	{"ratingCount", policyTakeGreater, mergeRatingCount},
	{"rating", policyTakeNewer, mergeRating},
	{"placeId", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.PlaceID = mergeStringPtr(ex.PlaceID, in.PlaceID)
	}},
	{"website", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.Website = mergeStringPtr(ex.Website, in.Website)
	}},
	{"phone", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.Phone = mergeStringPtr(ex.Phone, in.Phone)
	}},
	{"openingHours", policyTakeNewer, func(dst, ex, in *entity.Place) {
		dst.OpeningHours = mergeRawNewer(ex, in)
	}},
	{"description", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.Description = mergeStringPtr(ex.Description, in.Description)
	}},
	{"coverImage", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.CoverImage = mergeStringPtr(ex.CoverImage, in.CoverImage)
	}},
	{"sourceDetails.apify", policyNonNullOverwrite, mergeApifyDetails},
	{"sourceDetails.apify.searchHits", policyAppend, mergeSearchHits},
	{"customFields", policyNonNullOverwrite, mergeCustomFields},
	{"categorySlug", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.CategorySlug = mergeStringPtr(ex.CategorySlug, in.CategorySlug)
	}},
	{"categoryEn", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.CategoryEn = mergeStringPtr(ex.CategoryEn, in.CategoryEn)
	}},
	{"categoryZh", policyNonNullOverwrite, func(dst, ex, in *entity.Place) {
		dst.CategoryZh = mergeStringPtr(ex.CategoryZh, in.CategoryZh)
	}},
	{"tags", policyAppend, func(dst, ex, in *entity.Place) {
		dst.Tags = unionStrings(ex.Tags, in.Tags)
	}},
}

// MergePlaces combines an existing stored place with an incoming mapped
// place per the field policy table. Deterministic: no randomness, no
// wall-clock reads beyond the scrapedAt values already in the inputs.
// Row identity, creation time and the downstream AI tags always come from
// the existing side.
func MergePlaces(existing, incoming *entity.Place) *entity.Place {
	merged := &entity.Place{
		ID:        existing.ID,
		Source:    entity.SourceApify,
		AITags:    existing.AITags,
		CreatedAt: existing.CreatedAt,
	}
	if merged.AITags == nil {
		merged.AITags = []string{}
	}

	for _, rule := range mergeRules {
		rule.apply(merged, existing, incoming)
	}
	return merged
}

// incomingIsNewer implements the take-newer comparison on the provenance
// scrapedAt timestamps. Ties favor the incoming (newer scrape) side; a
// side with no timestamp loses to one that has it.
func incomingIsNewer(existing, incoming *entity.Place) bool {
	exTS := existing.SourceDetails.Apify.ScrapedAt
	inTS := incoming.SourceDetails.Apify.ScrapedAt
	switch {
	case inTS == nil && exTS == nil:
		return true
	case inTS == nil:
		return false
	case exTS == nil:
		return true
	default:
		return !inTS.Before(*exTS)
	}
}

// mergeRatingCount applies take-greater to ratingCount and carries the
// paired rating from whichever side produced the winning count. Ties
// favor the existing side.
func mergeRatingCount(dst, existing, incoming *entity.Place) {
	exCount, inCount := existing.RatingCount, incoming.RatingCount
	switch {
	case exCount == nil && inCount == nil:
		// No counts on either side; rating is merged independently.
		return
	case exCount == nil:
		dst.RatingCount = inCount
		dst.Rating = incoming.Rating
	case inCount == nil:
		dst.RatingCount = exCount
		dst.Rating = existing.Rating
	case *inCount > *exCount:
		dst.RatingCount = inCount
		dst.Rating = incoming.Rating
	default:
		dst.RatingCount = exCount
		dst.Rating = existing.Rating
	}
}

// mergeRating handles rating only when the take-greater linkage did not
// already resolve it, i.e. when neither side carries a ratingCount.
func mergeRating(dst, existing, incoming *entity.Place) {
	if existing.RatingCount != nil || incoming.RatingCount != nil {
		return
	}
	if incomingIsNewer(existing, incoming) {
		if incoming.Rating != nil {
			dst.Rating = incoming.Rating
		} else {
			dst.Rating = existing.Rating
		}
		return
	}
	if existing.Rating != nil {
		dst.Rating = existing.Rating
	} else {
		dst.Rating = incoming.Rating
	}
}

// mergeRawNewer takes the newer side's value wholesale, even when that
// side carries none: a fresh scrape without opening hours supersedes
// stale ones.
func mergeRawNewer(existing, incoming *entity.Place) json.RawMessage {
	if incomingIsNewer(existing, incoming) {
		return incoming.OpeningHours
	}
	return existing.OpeningHours
}

func mergeApifyDetails(dst, existing, incoming *entity.Place) {
	ex, in := existing.SourceDetails.Apify, incoming.SourceDetails.Apify
	dst.SourceDetails.Apify = entity.ApifyDetails{
		ScrapedAt:     mergeTimePtr(ex.ScrapedAt, in.ScrapedAt),
		SearchString:  mergeStringPtr(ex.SearchString, in.SearchString),
		Rank:          mergeIntPtr(ex.Rank, in.Rank),
		SearchPageURL: mergeStringPtr(ex.SearchPageURL, in.SearchPageURL),
		FID:           mergeStringPtr(ex.FID, in.FID),
		CID:           mergeStringPtr(ex.CID, in.CID),
	}
}

// mergeSearchHits appends: the union of both hit lists, de-duplicated by
// the (searchString, rank, scrapedAt) tuple. No element is ever dropped.
func mergeSearchHits(dst, existing, incoming *entity.Place) {
	exHits := existing.SourceDetails.Apify.SearchHits
	inHits := incoming.SourceDetails.Apify.SearchHits

	merged := make([]entity.SearchHit, 0, len(exHits)+len(inHits))
	seen := make(map[string]struct{}, len(exHits)+len(inHits))
	for _, hit := range exHits {
		key := hit.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, hit)
	}
	for _, hit := range inHits {
		key := hit.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, hit)
	}
	dst.SourceDetails.Apify.SearchHits = merged
}

func mergeCustomFields(dst, existing, incoming *entity.Place) {
	ex, in := existing.CustomFields, incoming.CustomFields
	merged := entity.CustomFields{
		PriceRaw:          mergeStringPtr(ex.PriceRaw, in.PriceRaw),
		CategoryNameRaw:   mergeStringPtr(ex.CategoryNameRaw, in.CategoryNameRaw),
		SubTitle:          mergeStringPtr(ex.SubTitle, in.SubTitle),
		Neighborhood:      mergeStringPtr(ex.Neighborhood, in.Neighborhood),
		Street:            mergeStringPtr(ex.Street, in.Street),
		State:             mergeStringPtr(ex.State, in.State),
		PostalCode:        mergeStringPtr(ex.PostalCode, in.PostalCode),
		PermanentlyClosed: mergeBoolPtr(ex.PermanentlyClosed, in.PermanentlyClosed),
		R2Key:             mergeStringPtr(ex.R2Key, in.R2Key),
		ImageSourceURL:    mergeStringPtr(ex.ImageSourceURL, in.ImageSourceURL),
		ImageMigratedAt:   mergeTimePtr(ex.ImageMigratedAt, in.ImageMigratedAt),
	}
	merged.ReviewsTags = ex.ReviewsTags
	if len(in.ReviewsTags) > 0 {
		merged.ReviewsTags = in.ReviewsTags
	}
	merged.PopularTimes = ex.PopularTimes
	if len(in.PopularTimes) > 0 {
		merged.PopularTimes = in.PopularTimes
	}
	merged.CategoriesRaw = ex.CategoriesRaw
	if len(in.CategoriesRaw) > 0 {
		merged.CategoriesRaw = in.CategoriesRaw
	}
	dst.CustomFields = merged
}

func mergeStringPtr(existing, incoming *string) *string {
	if incoming != nil && *incoming != "" {
		return incoming
	}
	return existing
}

func mergeNonEmpty(existing, incoming string) string {
	if incoming != "" {
		return incoming
	}
	return existing
}

func mergeIntPtr(existing, incoming *int) *int {
	if incoming != nil {
		return incoming
	}
	return existing
}

func mergeBoolPtr(existing, incoming *bool) *bool {
	if incoming != nil {
		return incoming
	}
	return existing
}

func mergeTimePtr(existing, incoming *time.Time) *time.Time {
	if incoming != nil {
		return incoming
	}
	return existing
}

func unionStrings(existing, incoming []string) []string {
	if len(existing) == 0 && len(incoming) == 0 {
		return nil
	}
	out := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, lists := range [][]string{existing, incoming} {
		for _, v := range lists {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
