package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wanderapp/places-importer/internal/entity"
)

func strPtr(v string) *string        { return &v }
func intPtr(v int) *int              { return &v }
func floatPtr(v float64) *float64    { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func basePlace(scrapedAt time.Time) *entity.Place {
	p := &entity.Place{
		ID:      uuid.New(),
		Name:    "Cafe Sonder",
		City:    "Copenhagen",
		Country: "DK",
		PlaceID: strPtr("P1"),
		Source:  entity.SourceApify,
		AITags:  []string{},
	}
	p.SourceDetails.Apify.ScrapedAt = timePtr(scrapedAt)
	return p
}

func TestMergeNonNullOverwriteKeepsExistingOnNullIncoming(t *testing.T) {
	ex := basePlace(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ex.Website = strPtr("http://old.example")
	ex.Name = "Old Name"

	in := basePlace(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	in.Website = nil
	in.Name = ""

	merged := MergePlaces(ex, in)
	if merged.Website == nil || *merged.Website != "http://old.example" {
		t.Fatalf("expected existing website kept, got %v", merged.Website)
	}
	if merged.Name != "Old Name" {
		t.Fatalf("expected existing name kept, got %q", merged.Name)
	}
}

func TestMergeNonNullOverwriteTakesIncomingValue(t *testing.T) {
	ex := basePlace(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ex.Phone = strPtr("+4511111111")

	in := basePlace(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	in.Phone = strPtr("+4522222222")
	in.Name = "New Name"

	merged := MergePlaces(ex, in)
	if merged.Phone == nil || *merged.Phone != "+4522222222" {
		t.Fatalf("expected incoming phone, got %v", merged.Phone)
	}
	if merged.Name != "New Name" {
		t.Fatalf("expected incoming name, got %q", merged.Name)
	}
}

func TestMergeRatingFollowsWinningRatingCount(t *testing.T) {
	ex := basePlace(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ex.Rating = floatPtr(4.2)
	ex.RatingCount = intPtr(10)

	in := basePlace(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	in.Rating = floatPtr(4.6)
	in.RatingCount = intPtr(25)

	merged := MergePlaces(ex, in)
	if merged.RatingCount == nil || *merged.RatingCount != 25 {
		t.Fatalf("expected ratingCount 25, got %v", merged.RatingCount)
	}
	if merged.Rating == nil || *merged.Rating != 4.6 {
		t.Fatalf("expected rating 4.6 from winning side, got %v", merged.Rating)
	}
}

func TestMergeRatingCountTieFavorsExisting(t *testing.T) {
	ex := basePlace(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ex.Rating = floatPtr(4.0)
	ex.RatingCount = intPtr(10)

	in := basePlace(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	in.Rating = floatPtr(4.9)
	in.RatingCount = intPtr(10)

	merged := MergePlaces(ex, in)
	if merged.Rating == nil || *merged.Rating != 4.0 {
		t.Fatalf("expected existing rating on tie, got %v", merged.Rating)
	}
}

func TestMergeRatingCountLowerIncomingKeepsExisting(t *testing.T) {
	ex := basePlace(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ex.Rating = floatPtr(4.5)
	ex.RatingCount = intPtr(100)

	in := basePlace(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	in.Rating = floatPtr(3.1)
	in.RatingCount = intPtr(40)

	merged := MergePlaces(ex, in)
	if *merged.RatingCount != 100 || *merged.Rating != 4.5 {
		t.Fatalf("expected existing pair kept, got count=%v rating=%v", merged.RatingCount, merged.Rating)
	}
}

func TestMergeOpeningHoursTakeNewer(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	ex := basePlace(older)
	ex.OpeningHours = json.RawMessage(`{"mon":"9-17"}`)
	in := basePlace(newer)
	in.OpeningHours = json.RawMessage(`{"mon":"10-18"}`)

	merged := MergePlaces(ex, in)
	if string(merged.OpeningHours) != `{"mon":"10-18"}` {
		t.Fatalf("expected newer opening hours, got %s", merged.OpeningHours)
	}

	// Reversed timestamps: the existing side is the newer scrape.
	ex2 := basePlace(newer)
	ex2.OpeningHours = json.RawMessage(`{"mon":"9-17"}`)
	in2 := basePlace(older)
	in2.OpeningHours = json.RawMessage(`{"mon":"10-18"}`)

	merged2 := MergePlaces(ex2, in2)
	if string(merged2.OpeningHours) != `{"mon":"9-17"}` {
		t.Fatalf("expected existing opening hours, got %s", merged2.OpeningHours)
	}
}

func TestMergeOpeningHoursNewerSideWinsEvenWhenEmpty(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	ex := basePlace(older)
	ex.OpeningHours = json.RawMessage(`{"mon":"9-17"}`)
	in := basePlace(newer)
	in.OpeningHours = nil

	merged := MergePlaces(ex, in)
	if len(merged.OpeningHours) != 0 {
		t.Fatalf("a newer scrape without hours must supersede stale ones, got %s", merged.OpeningHours)
	}
}

func TestMergeOpeningHoursTieFavorsIncoming(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ex := basePlace(ts)
	ex.OpeningHours = json.RawMessage(`{"mon":"9-17"}`)
	in := basePlace(ts)
	in.OpeningHours = json.RawMessage(`{"mon":"10-18"}`)

	merged := MergePlaces(ex, in)
	if string(merged.OpeningHours) != `{"mon":"10-18"}` {
		t.Fatalf("expected incoming to win tie, got %s", merged.OpeningHours)
	}
}

func TestMergeSearchHitsAppendDeduplicates(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	ex := basePlace(t1)
	ex.SourceDetails.Apify.SearchHits = []entity.SearchHit{
		{SearchString: "coffee copenhagen", Rank: 3, ScrapedAt: timePtr(t1)},
	}
	in := basePlace(t2)
	in.SourceDetails.Apify.SearchHits = []entity.SearchHit{
		{SearchString: "coffee copenhagen", Rank: 3, ScrapedAt: timePtr(t1)},
		{SearchString: "best cafes", Rank: 1, ScrapedAt: timePtr(t2)},
	}

	merged := MergePlaces(ex, in)
	hits := merged.SourceDetails.Apify.SearchHits
	if len(hits) != 2 {
		t.Fatalf("expected 2 deduplicated hits, got %d: %+v", len(hits), hits)
	}
	if hits[0].SearchString != "coffee copenhagen" || hits[1].SearchString != "best cafes" {
		t.Fatalf("unexpected hit order: %+v", hits)
	}
}

func TestMergeSearchHitsNeverDropsElements(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ex := basePlace(t1)
	ex.SourceDetails.Apify.SearchHits = []entity.SearchHit{
		{SearchString: "a", Rank: 1, ScrapedAt: timePtr(t1)},
		{SearchString: "b", Rank: 2, ScrapedAt: timePtr(t1)},
	}
	in := basePlace(t1)
	in.SourceDetails.Apify.SearchHits = []entity.SearchHit{
		{SearchString: "c", Rank: 1, ScrapedAt: timePtr(t1)},
	}

	merged := MergePlaces(ex, in)
	hits := merged.SourceDetails.Apify.SearchHits
	if len(hits) < 2 || len(hits) != 3 {
		t.Fatalf("expected superset of both hit lists, got %+v", hits)
	}
}

func TestMergePreservesRowIdentityAndAITags(t *testing.T) {
	ex := basePlace(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ex.AITags = []string{"cozy"}
	created := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	ex.CreatedAt = created

	in := basePlace(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	in.AITags = []string{}

	merged := MergePlaces(ex, in)
	if merged.ID != ex.ID {
		t.Fatalf("expected row identity preserved")
	}
	if !merged.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at preserved, got %v", merged.CreatedAt)
	}
	if len(merged.AITags) != 1 || merged.AITags[0] != "cozy" {
		t.Fatalf("expected downstream ai tags untouched, got %v", merged.AITags)
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	ex := basePlace(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ex.Rating = floatPtr(4.2)
	ex.RatingCount = intPtr(10)
	in := basePlace(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	in.Rating = floatPtr(4.6)
	in.RatingCount = intPtr(25)

	first, _ := json.Marshal(MergePlaces(ex, in))
	second, _ := json.Marshal(MergePlaces(ex, in))
	if string(first) != string(second) {
		t.Fatalf("merge output not deterministic")
	}
}

func TestIdentityCandidatesOrder(t *testing.T) {
	p := &entity.Place{PlaceID: strPtr("P1")}
	p.SourceDetails.Apify.FID = strPtr("F1")
	p.SourceDetails.Apify.CID = strPtr("C1")

	ids := entity.IdentityCandidates(p)
	if len(ids) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(ids))
	}
	if ids[0].Kind != entity.IdentityPlaceID || ids[1].Kind != entity.IdentityFID || ids[2].Kind != entity.IdentityCID {
		t.Fatalf("wrong fallback order: %+v", ids)
	}

	p.PlaceID = nil
	ids = entity.IdentityCandidates(p)
	if len(ids) != 2 || ids[0].Kind != entity.IdentityFID {
		t.Fatalf("expected fid first when placeId absent, got %+v", ids)
	}
}
