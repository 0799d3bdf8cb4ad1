package service

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wanderapp/places-importer/internal/config"
	"github.com/wanderapp/places-importer/internal/dto"
	"github.com/wanderapp/places-importer/internal/entity"
	"github.com/wanderapp/places-importer/internal/images"
	"github.com/wanderapp/places-importer/internal/report"
	"github.com/wanderapp/places-importer/internal/repository"
	"github.com/wanderapp/places-importer/internal/source"
)

// ImageIngestor resolves a source photo URL into stored object content.
type ImageIngestor interface {
	Ingest(ctx context.Context, sourceURL string) (*images.Result, error)
}

// Importer drives the reconciliation run: batches of records are
// validated, mapped, resolved against the store, merged per the field
// policy table and persisted, with cover images migrated on the side.
type Importer struct {
	repo    repository.PlacesRepository
	imgs    ImageIngestor
	cfg     config.ImportConfig
	tracker *report.Tracker
	locks   *identityLocks
	pacer   *rate.Limiter
}

// NewImporter wires an importer. imgs may be nil, in which case every
// record proceeds without a cover image.
func NewImporter(repo repository.PlacesRepository, imgs ImageIngestor, cfg config.ImportConfig, tracker *report.Tracker) *Importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	imp := &Importer{
		repo:    repo,
		imgs:    imgs,
		cfg:     cfg,
		tracker: tracker,
		locks:   newIdentityLocks(),
	}
	if cfg.BatchDelay > 0 {
		imp.pacer = rate.NewLimiter(rate.Every(cfg.BatchDelay), 1)
	}
	return imp
}

// Run drains the reader batch by batch until it is exhausted, the context
// is cancelled, or the source fails fatally. The returned report is valid
// in every case; the error is non-nil only for fatal source failures.
func (imp *Importer) Run(ctx context.Context, reader source.Reader) (entity.RunReport, error) {
	defer imp.tracker.Finish()

	batchNum := 0
	for {
		if err := ctx.Err(); err != nil {
			log.Printf("run_id=%s msg=\"run aborted between batches\" batches=%d", imp.tracker.RunID(), batchNum)
			return imp.tracker.Snapshot(), nil
		}

		batch, readErr := imp.readBatch(ctx, reader)
		if len(batch) > 0 {
			batchNum++
			// In-flight record operations complete even when the run is
			// being aborted; cancellation is honored between batches.
			imp.processBatch(context.WithoutCancel(ctx), batchNum, batch)
		}

		if readErr != nil {
			var fatal *source.FatalError
			if errors.As(readErr, &fatal) {
				log.Printf("run_id=%s msg=\"fatal source failure\" err=%q", imp.tracker.RunID(), fatal.Error())
				return imp.tracker.Snapshot(), fatal
			}
			if errors.Is(readErr, source.ErrDone) {
				return imp.tracker.Snapshot(), nil
			}
			if errors.Is(readErr, context.Canceled) || errors.Is(readErr, context.DeadlineExceeded) {
				return imp.tracker.Snapshot(), nil
			}
			return imp.tracker.Snapshot(), readErr
		}

		if imp.pacer != nil {
			if err := imp.pacer.Wait(ctx); err != nil {
				return imp.tracker.Snapshot(), nil
			}
		}
	}
}

func (imp *Importer) readBatch(ctx context.Context, reader source.Reader) ([]*dto.RawScrapedRecord, error) {
	batch := make([]*dto.RawScrapedRecord, 0, imp.cfg.BatchSize)
	for len(batch) < imp.cfg.BatchSize {
		rec, err := reader.Next(ctx)
		if err != nil {
			return batch, err
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

// group is one identity's worth of work within a batch: all records that
// coalesced into it, the resolved stored row (if any) and the image URL
// carried forward for ingestion.
type group struct {
	identity entity.Identity
	incoming *entity.Place
	imageURL string
	key      string
	members  int
	existing *entity.Place
	failed   bool
}

func (imp *Importer) processBatch(ctx context.Context, batchNum int, batch []*dto.RawScrapedRecord) {
	prepared := imp.prepareRecords(ctx, batch)
	groups := coalesce(prepared)
	imp.resolveGroups(ctx, groups)
	imp.ingestImages(ctx, groups)
	rows, live := imp.mergeGroups(groups)
	imp.persist(ctx, rows, live)

	snap := imp.tracker.Snapshot()
	log.Printf("run_id=%s batch=%d size=%d inserted=%d updated=%d skipped=%d failed=%d",
		imp.tracker.RunID(), batchNum, len(batch), snap.Inserted, snap.Updated, snap.Skipped, snap.Failed)
}

type prepared struct {
	place    *entity.Place
	imageURL string
	key      string
}

// prepareRecords runs validation, field mapping and category
// normalization concurrently. Rejected records are counted as skipped and
// never reach a later stage.
func (imp *Importer) prepareRecords(ctx context.Context, batch []*dto.RawScrapedRecord) []*prepared {
	out := make([]*prepared, len(batch))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(imp.cfg.Concurrency)
	for i, rec := range batch {
		i, rec := i, rec
		g.Go(func() error {
			valid, err := ValidateRecord(rec)
			if err != nil {
				imp.tracker.RecordSkipped(recordKey(rec), err.Error())
				return nil
			}

			place := MapRecord(valid)
			cat := NormalizeCategory(place.CustomFields.CategoriesRaw, valid.Raw.CategoryName, valid.Raw.SearchString)
			place.CategorySlug = cat.Slug
			place.CategoryEn = cat.En
			place.CategoryZh = cat.Zh
			place.Tags = cat.Tags

			item := &prepared{place: place, key: recordKey(rec)}
			if rec.ImageURL != nil {
				item.imageURL = *rec.ImageURL
			}
			out[i] = item
			return nil
		})
	}
	g.Wait()

	return out
}

// coalesce folds records sharing an identity into one incoming row per
// identity, applying the same merge policy table so a batch with
// duplicates behaves exactly like sequential imports.
func coalesce(items []*prepared) []*group {
	var groups []*group
	index := make(map[entity.Identity]*group)

	for _, item := range items {
		if item == nil {
			continue
		}
		id, ok := entity.PrimaryIdentity(item.place)
		if !ok {
			// Unreachable after validation, which requires the primary
			// identifier.
			continue
		}

		grp, seen := index[id]
		if !seen {
			grp = &group{identity: id, incoming: item.place, imageURL: item.imageURL, key: item.key, members: 1}
			index[id] = grp
			groups = append(groups, grp)
			continue
		}

		grp.incoming = MergePlaces(grp.incoming, item.place)
		grp.members++
		if item.imageURL != "" {
			grp.imageURL = item.imageURL
		}
	}

	return groups
}

// resolveGroups looks each identity up in the store, walking the fallback
// chain until a row matches. A read failure fails the whole group.
func (imp *Importer) resolveGroups(ctx context.Context, groups []*group) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(imp.cfg.Concurrency)
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			existing, err := imp.resolveIdentity(ctx, grp.incoming)
			if err != nil {
				imp.failGroup(grp, "resolve identity: "+err.Error())
				return nil
			}
			grp.existing = existing
			return nil
		})
	}
	g.Wait()
}

func (imp *Importer) resolveIdentity(ctx context.Context, place *entity.Place) (*entity.Place, error) {
	for _, id := range entity.IdentityCandidates(place) {
		existing, err := imp.repo.FindByIdentity(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrPlaceNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// ingestImages migrates cover photos concurrently, before any identity
// lock is taken: the lock must never wrap network I/O. Rows that already
// carry a migrated image are left alone.
func (imp *Importer) ingestImages(ctx context.Context, groups []*group) {
	if imp.imgs == nil {
		return
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(imp.cfg.Concurrency)
	for _, grp := range groups {
		if grp.failed || grp.imageURL == "" {
			continue
		}
		if grp.existing != nil && grp.existing.CustomFields.R2Key != nil {
			continue
		}
		grp := grp
		g.Go(func() error {
			res, err := imp.imgs.Ingest(ctx, grp.imageURL)
			if err != nil {
				imp.tracker.RecordImageSkipped(grp.key, err.Error())
				return nil
			}
			applyImageResult(grp.incoming, res)
			return nil
		})
	}
	g.Wait()
}

func applyImageResult(place *entity.Place, res *images.Result) {
	place.CoverImage = &res.URL
	place.CustomFields.R2Key = &res.Key
	place.CustomFields.ImageSourceURL = &res.SourceURL
	migratedAt := res.MigratedAt
	place.CustomFields.ImageMigratedAt = &migratedAt
}

// mergeGroups produces the row to persist for every live group. The
// per-identity lock wraps only the pure merge against the already-read
// row; the image result is fully known by now.
func (imp *Importer) mergeGroups(groups []*group) ([]*entity.Place, []*group) {
	var rows []*entity.Place
	var live []*group

	for _, grp := range groups {
		if grp.failed {
			continue
		}
		release := imp.locks.acquire(grp.identity)
		var row *entity.Place
		if grp.existing != nil {
			row = MergePlaces(grp.existing, grp.incoming)
		} else {
			row = grp.incoming
		}
		release()

		rows = append(rows, row)
		live = append(live, grp)
	}
	return rows, live
}

// persist writes the whole batch in one transaction; when the datastore
// rejects the batch, each row is retried individually so one bad record
// does not block its siblings.
func (imp *Importer) persist(ctx context.Context, rows []*entity.Place, live []*group) {
	if len(rows) == 0 {
		return
	}

	err := imp.repo.UpsertBatch(ctx, rows)
	if err == nil {
		for i, grp := range live {
			imp.countPersisted(grp, rows[i])
		}
		return
	}
	log.Printf("run_id=%s msg=\"batch persistence failed, retrying records individually\" err=%q",
		imp.tracker.RunID(), err.Error())

	for i, grp := range live {
		row := rows[i]
		// A rolled-back insert may have left a row id behind; a fresh one
		// is assigned on the retry.
		if grp.existing == nil {
			row.ID = uuid.Nil
		}

		release := imp.locks.acquire(grp.identity)
		err := imp.repo.Upsert(ctx, row)
		release()

		if err != nil {
			imp.failGroup(grp, err.Error())
			continue
		}
		imp.countPersisted(grp, row)
	}
}

func (imp *Importer) countPersisted(grp *group, row *entity.Place) {
	if grp.existing == nil {
		imp.tracker.RecordInserted()
		for i := 1; i < grp.members; i++ {
			imp.tracker.RecordUpdated()
		}
	} else {
		for i := 0; i < grp.members; i++ {
			imp.tracker.RecordUpdated()
		}
	}
	imp.tracker.ObserveRow(len(row.OpeningHours) > 0, row.CoverImage != nil)
}

func (imp *Importer) failGroup(grp *group, reason string) {
	grp.failed = true
	for i := 0; i < grp.members; i++ {
		imp.tracker.RecordFailed(grp.key, reason)
	}
}

func recordKey(rec *dto.RawScrapedRecord) string {
	switch {
	case rec == nil:
		return ""
	case rec.PlaceID != nil && *rec.PlaceID != "":
		return *rec.PlaceID
	case rec.FID != nil && *rec.FID != "":
		return *rec.FID
	case rec.CID != nil && *rec.CID != "":
		return *rec.CID
	default:
		return rec.Title
	}
}
