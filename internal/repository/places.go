package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanderapp/places-importer/internal/entity"
)

// ErrPlaceNotFound indicates no stored row matches the given identity.
var ErrPlaceNotFound = errors.New("place not found")

// PlacesRepository describes persistence operations for reconciled places.
type PlacesRepository interface {
	FindByIdentity(ctx context.Context, id entity.Identity) (*entity.Place, error)
	Upsert(ctx context.Context, place *entity.Place) error
	UpsertBatch(ctx context.Context, places []*entity.Place) error
}

// Querier abstracts the subset of pgxpool.Pool used for single
// statements, so tests can inject a stub.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB is a Querier that can also open transactions.
type DB interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PGXPlacesRepository implements PlacesRepository using pgx.
type PGXPlacesRepository struct {
	db DB
}

// NewPGXPlacesRepository wires a pgx backed repository.
func NewPGXPlacesRepository(pool *pgxpool.Pool) *PGXPlacesRepository {
	return &PGXPlacesRepository{db: pool}
}

// NewPGXPlacesRepositoryWithDB injects a custom DB (used in tests).
func NewPGXPlacesRepositoryWithDB(db DB) *PGXPlacesRepository {
	return &PGXPlacesRepository{db: db}
}

var _ DB = (*pgxpool.Pool)(nil)

const placeColumns = `
	id, name, latitude, longitude, address, city, country,
	rating, rating_count, place_id, website, phone,
	opening_hours, description, cover_image, source,
	source_details, custom_fields,
	category_slug, category_en, category_zh, tags, ai_tags,
	created_at, updated_at
`

// identityClauses maps each identity kind to its lookup predicate. The
// alternates live inside the provenance JSONB, not in their own columns.
var identityClauses = map[entity.IdentityKind]string{
	entity.IdentityPlaceID: "place_id = $1",
	entity.IdentityFID:     "source_details->'apify'->>'fid' = $1",
	entity.IdentityCID:     "source_details->'apify'->>'cid' = $1",
}

// FindByIdentity returns the stored row matching one identity, or
// ErrPlaceNotFound.
func (r *PGXPlacesRepository) FindByIdentity(ctx context.Context, id entity.Identity) (*entity.Place, error) {
	clause, ok := identityClauses[id.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown identity kind %q", id.Kind)
	}

	query := "SELECT " + placeColumns + " FROM places WHERE " + clause + " LIMIT 1"
	place, err := scanPlace(r.db.QueryRow(ctx, query, id.Value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlaceNotFound
		}
		return nil, fmt.Errorf("find place by %s: %w", id.Kind, err)
	}
	return place, nil
}

// Upsert inserts the place when it has no row identity yet, assigning a
// fresh one, and updates the row in place otherwise.
func (r *PGXPlacesRepository) Upsert(ctx context.Context, place *entity.Place) error {
	return upsertIn(ctx, r.db, place)
}

// UpsertBatch persists all rows inside one transaction. Any failure rolls
// the whole batch back so it is never partially applied; the caller falls
// back to per-record upserts.
func (r *PGXPlacesRepository) UpsertBatch(ctx context.Context, places []*entity.Place) error {
	if len(places) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("start batch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, place := range places {
		if err := upsertIn(ctx, tx, place); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch tx: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertPlaceSQL = `
	INSERT INTO places (
		id, name, latitude, longitude, address, city, country,
		rating, rating_count, place_id, website, phone,
		opening_hours, description, cover_image, source,
		source_details, custom_fields,
		category_slug, category_en, category_zh, tags, ai_tags,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12,
		$13, $14, $15, $16,
		$17::jsonb, $18::jsonb,
		$19, $20, $21, $22, $23,
		NOW(), NOW()
	)
`

const updatePlaceSQL = `
	UPDATE places SET
		name = $2, latitude = $3, longitude = $4, address = $5,
		city = $6, country = $7, rating = $8, rating_count = $9,
		place_id = $10, website = $11, phone = $12,
		opening_hours = $13, description = $14, cover_image = $15,
		source = $16, source_details = $17::jsonb, custom_fields = $18::jsonb,
		category_slug = $19, category_en = $20, category_zh = $21,
		tags = $22, ai_tags = $23,
		updated_at = NOW()
	WHERE id = $1
`

func upsertIn(ctx context.Context, q execer, place *entity.Place) error {
	if place == nil {
		return fmt.Errorf("place payload is nil")
	}

	insert := place.ID == uuid.Nil
	if insert {
		place.ID = uuid.New()
	}

	details, err := json.Marshal(place.SourceDetails)
	if err != nil {
		return fmt.Errorf("marshal source details: %w", err)
	}
	custom, err := json.Marshal(place.CustomFields)
	if err != nil {
		return fmt.Errorf("marshal custom fields: %w", err)
	}

	hours := place.OpeningHours
	if len(hours) == 0 {
		hours = nil
	}
	aiTags := place.AITags
	if aiTags == nil {
		aiTags = []string{}
	}

	stmt := updatePlaceSQL
	if insert {
		stmt = insertPlaceSQL
	}

	_, err = q.Exec(ctx, stmt,
		place.ID,
		place.Name,
		place.Latitude,
		place.Longitude,
		place.Address,
		place.City,
		place.Country,
		place.Rating,
		place.RatingCount,
		place.PlaceID,
		place.Website,
		place.Phone,
		hours,
		place.Description,
		place.CoverImage,
		place.Source,
		string(details),
		string(custom),
		place.CategorySlug,
		place.CategoryEn,
		place.CategoryZh,
		stringSliceOrEmpty(place.Tags),
		aiTags,
	)
	if err != nil {
		if insert {
			place.ID = uuid.Nil
			return fmt.Errorf("insert place: %w", err)
		}
		return fmt.Errorf("update place %s: %w", place.ID, err)
	}
	return nil
}

func scanPlace(row pgx.Row) (*entity.Place, error) {
	var (
		p            entity.Place
		address      sql.NullString
		rating       sql.NullFloat64
		ratingCount  sql.NullInt64
		placeID      sql.NullString
		website      sql.NullString
		phone        sql.NullString
		hours        []byte
		description  sql.NullString
		coverImage   sql.NullString
		details      []byte
		custom       []byte
		categorySlug sql.NullString
		categoryEn   sql.NullString
		categoryZh   sql.NullString
		tags         []string
		aiTags       []string
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Latitude,
		&p.Longitude,
		&address,
		&p.City,
		&p.Country,
		&rating,
		&ratingCount,
		&placeID,
		&website,
		&phone,
		&hours,
		&description,
		&coverImage,
		&p.Source,
		&details,
		&custom,
		&categorySlug,
		&categoryEn,
		&categoryZh,
		&tags,
		&aiTags,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Address = nullStringToPtr(address)
	if rating.Valid {
		val := rating.Float64
		p.Rating = &val
	}
	if ratingCount.Valid {
		val := int(ratingCount.Int64)
		p.RatingCount = &val
	}
	p.PlaceID = nullStringToPtr(placeID)
	p.Website = nullStringToPtr(website)
	p.Phone = nullStringToPtr(phone)
	if len(hours) > 0 {
		p.OpeningHours = json.RawMessage(hours)
	}
	p.Description = nullStringToPtr(description)
	p.CoverImage = nullStringToPtr(coverImage)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &p.SourceDetails); err != nil {
			return nil, fmt.Errorf("unmarshal source details: %w", err)
		}
	}
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &p.CustomFields); err != nil {
			return nil, fmt.Errorf("unmarshal custom fields: %w", err)
		}
	}
	p.CategorySlug = nullStringToPtr(categorySlug)
	p.CategoryEn = nullStringToPtr(categoryEn)
	p.CategoryZh = nullStringToPtr(categoryZh)
	if len(tags) > 0 {
		p.Tags = tags
	}
	p.AITags = aiTags
	if p.AITags == nil {
		p.AITags = []string{}
	}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt

	return &p, nil
}

func nullStringToPtr(value sql.NullString) *string {
	if value.Valid {
		val := value.String
		return &val
	}
	return nil
}

func stringSliceOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
