package entity

// IdentityKind names which scraped identifier backs an Identity.
type IdentityKind string

const (
	IdentityPlaceID IdentityKind = "placeId"
	IdentityFID     IdentityKind = "fid"
	IdentityCID     IdentityKind = "cid"
)

// Identity is the derived dedup key for a place. Within one run, all
// records resolving to the same Identity collapse into a single row.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// identityExtractors is the ordered fallback chain. Adding a fourth
// identifier type is an append here, not new branching.
var identityExtractors = []struct {
	kind    IdentityKind
	extract func(*Place) *string
}{
	{IdentityPlaceID, func(p *Place) *string { return p.PlaceID }},
	{IdentityFID, func(p *Place) *string { return p.SourceDetails.Apify.FID }},
	{IdentityCID, func(p *Place) *string { return p.SourceDetails.Apify.CID }},
}

// IdentityCandidates returns the available identities in resolution order:
// primary place identifier first, then the alternates.
func IdentityCandidates(p *Place) []Identity {
	var out []Identity
	for _, ex := range identityExtractors {
		if v := ex.extract(p); v != nil && *v != "" {
			out = append(out, Identity{Kind: ex.kind, Value: *v})
		}
	}
	return out
}

// PrimaryIdentity returns the first available identity. The second result
// is false when the place carries no identifier at all.
func PrimaryIdentity(p *Place) (Identity, bool) {
	ids := IdentityCandidates(p)
	if len(ids) == 0 {
		return Identity{}, false
	}
	return ids[0], true
}
