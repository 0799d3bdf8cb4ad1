package entity

import "time"

// ImportError is one non-fatal failure accumulated during a run. Key is
// the record's place identifier where one was known.
type ImportError struct {
	Key    string `json:"key"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Coverage reports field-presence ratios over processed records.
type Coverage struct {
	RequiredFields float64 `json:"required_fields"`
	OpeningHours   float64 `json:"opening_hours"`
	CoverImage     float64 `json:"cover_image"`
}

// RunReport is the run-level summary owed to the reporter.
// Invariant: Total == Inserted + Updated + Skipped + Failed.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Total      int           `json:"total"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Coverage   Coverage      `json:"coverage"`
	Errors     []ImportError `json:"errors,omitempty"`
}
