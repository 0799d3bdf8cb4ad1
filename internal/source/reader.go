package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wanderapp/places-importer/internal/dto"
)

// ErrDone signals that the reader has yielded every record.
var ErrDone = errors.New("source exhausted")

// FatalError marks upstream failures that no per-record handling can route
// around (authentication, unrecoverable pagination). The run terminates.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source failure: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("source failure: %s", e.Reason)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Reader yields raw scraped records one at a time. Page size, auth and
// fetch retries are the reader's concern; callers only see the sequence.
type Reader interface {
	Next(ctx context.Context) (*dto.RawScrapedRecord, error)
}

// FileReader reads crawler output from disk, accepting either NDJSON or a
// single JSON array (both shapes appear in dataset exports).
type FileReader struct {
	records []dto.RawScrapedRecord
	pos     int
}

// NewFileReader loads and decodes the whole file up front. Dataset exports
// are bounded, so slurping keeps the decoding failure mode simple: a
// malformed file fails the run before any side effect.
func NewFileReader(path string) (*FileReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FatalError{Reason: "read source file", Err: err}
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, &FatalError{Reason: "decode source file", Err: err}
	}

	return &FileReader{records: records}, nil
}

// Next returns the following record or ErrDone.
func (r *FileReader) Next(ctx context.Context) (*dto.RawScrapedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.pos >= len(r.records) {
		return nil, ErrDone
	}
	rec := r.records[r.pos]
	r.pos++
	return &rec, nil
}

func decodeRecords(data []byte) ([]dto.RawScrapedRecord, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []dto.RawScrapedRecord
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode JSON array: %w", err)
		}
		return records, nil
	}

	var records []dto.RawScrapedRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec dto.RawScrapedRecord
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode NDJSON line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("scan NDJSON: %w", err)
	}
	return records, nil
}
