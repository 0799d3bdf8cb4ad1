package report

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wanderapp/places-importer/internal/entity"
)

// Stage names used for accumulated error entries.
const (
	StageValidation  = "validation"
	StageImage       = "image"
	StagePersistence = "persistence"
)

// Tracker accumulates run counts, coverage counters and the non-fatal
// error list. Safe for concurrent use; the count invariant
// total == inserted + updated + skipped + failed holds at every snapshot.
type Tracker struct {
	mu sync.Mutex

	runID     string
	startedAt time.Time
	finished  *time.Time

	inserted int
	updated  int
	skipped  int
	failed   int

	requiredOK   int
	hoursPresent int
	coverPresent int
	persisted    int

	errors []entity.ImportError
}

// NewTracker starts a tracker for a fresh run.
func NewTracker() *Tracker {
	return &Tracker{
		runID:     uuid.NewString(),
		startedAt: time.Now().UTC(),
	}
}

// RunID identifies this run in logs and reports.
func (t *Tracker) RunID() string { return t.runID }

// RecordInserted counts a record that created a new row.
func (t *Tracker) RecordInserted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inserted++
	t.requiredOK++
}

// RecordUpdated counts a record merged into an existing row.
func (t *Tracker) RecordUpdated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updated++
	t.requiredOK++
}

// RecordSkipped counts a validation rejection.
func (t *Tracker) RecordSkipped(key, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped++
	t.errors = append(t.errors, entity.ImportError{Key: key, Stage: StageValidation, Reason: reason})
}

// RecordFailed counts a per-record persistence failure.
func (t *Tracker) RecordFailed(key, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
	t.requiredOK++
	t.errors = append(t.errors, entity.ImportError{Key: key, Stage: StagePersistence, Reason: reason})
}

// RecordImageSkipped notes a non-fatal image failure; the record itself
// still proceeds and is counted by its persistence outcome.
func (t *Tracker) RecordImageSkipped(key, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, entity.ImportError{Key: key, Stage: StageImage, Reason: reason})
}

// ObserveRow feeds coverage counters for one persisted row.
func (t *Tracker) ObserveRow(hasOpeningHours, hasCoverImage bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.persisted++
	if hasOpeningHours {
		t.hoursPresent++
	}
	if hasCoverImage {
		t.coverPresent++
	}
}

// Finish stamps the run end time.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.finished = &now
}

// Snapshot renders the current state as a RunReport.
func (t *Tracker) Snapshot() entity.RunReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.inserted + t.updated + t.skipped + t.failed
	report := entity.RunReport{
		RunID:     t.runID,
		StartedAt: t.startedAt,
		Total:     total,
		Inserted:  t.inserted,
		Updated:   t.updated,
		Skipped:   t.skipped,
		Failed:    t.failed,
	}
	if t.finished != nil {
		finished := *t.finished
		report.FinishedAt = &finished
	}
	if total > 0 {
		report.Coverage.RequiredFields = float64(t.requiredOK) / float64(total)
	}
	if t.persisted > 0 {
		report.Coverage.OpeningHours = float64(t.hoursPresent) / float64(t.persisted)
		report.Coverage.CoverImage = float64(t.coverPresent) / float64(t.persisted)
	}
	report.Errors = append([]entity.ImportError(nil), t.errors...)
	return report
}
