package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writeSourceFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func drain(t *testing.T, r Reader) []string {
	t.Helper()
	var titles []string
	for {
		rec, err := r.Next(context.Background())
		if errors.Is(err, ErrDone) {
			return titles
		}
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		titles = append(titles, rec.Title)
	}
}

func TestFileReaderJSONArray(t *testing.T) {
	path := writeSourceFile(t, "export.json", `[
		{"title": "Place One", "placeId": "a"},
		{"title": "Place Two", "placeId": "b"}
	]`)

	r, err := NewFileReader(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	titles := drain(t, r)
	if len(titles) != 2 || titles[0] != "Place One" || titles[1] != "Place Two" {
		t.Fatalf("unexpected records: %v", titles)
	}
}

func TestFileReaderNDJSON(t *testing.T) {
	path := writeSourceFile(t, "export.ndjson",
		`{"title": "Place One", "placeId": "a"}

{"title": "Place Two", "placeId": "b"}
`)

	r, err := NewFileReader(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	titles := drain(t, r)
	if len(titles) != 2 {
		t.Fatalf("blank lines must be skipped, got %v", titles)
	}
}

func TestFileReaderPreservesNumericPrecision(t *testing.T) {
	path := writeSourceFile(t, "export.json",
		`[{"title": "P", "location": {"lat": 55.6760968, "lng": 12.5683371}}]`)

	r, err := NewFileReader(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Location == nil || rec.Location.Lat != json.Number("55.6760968") {
		t.Fatalf("coordinates must decode as json.Number, got %+v", rec.Location)
	}
}

func TestFileReaderMalformedFileIsFatal(t *testing.T) {
	path := writeSourceFile(t, "broken.json", `[{"title": "P"`)

	_, err := NewFileReader(path)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected fatal error for malformed file, got %v", err)
	}
}

func TestFileReaderMissingFileIsFatal(t *testing.T) {
	_, err := NewFileReader(filepath.Join(t.TempDir(), "absent.json"))
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected fatal error for missing file, got %v", err)
	}
}

func TestDatasetReaderPaginates(t *testing.T) {
	const total = 5
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[")
		wrote := 0
		for i := offset; i < total && wrote < limit; i++ {
			if wrote > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"title": "Place %d"}`, i)
			wrote++
		}
		fmt.Fprint(w, "]")
	}))
	defer srv.Close()

	r := NewDatasetReader(srv.Client(), srv.URL, "tok", 2)
	titles := drain(t, r)
	if len(titles) != total {
		t.Fatalf("expected %d records over pages, got %d", total, len(titles))
	}
	// 5 records at page size 2: offsets 0, 2, 4; the short last page ends
	// the pagination without an extra empty fetch.
	if len(requests) != 3 {
		t.Fatalf("expected 3 page fetches, got %d: %v", len(requests), requests)
	}
}

func TestDatasetReaderSendsTokenAndLimit(t *testing.T) {
	var gotToken, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		gotLimit = r.URL.Query().Get("limit")
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	r := NewDatasetReader(srv.Client(), srv.URL, "secret", 100)
	if _, err := r.Next(context.Background()); !errors.Is(err, ErrDone) {
		t.Fatalf("expected ErrDone on empty dataset, got %v", err)
	}
	if gotToken != "secret" || gotLimit != "100" {
		t.Fatalf("unexpected query params: token=%q limit=%q", gotToken, gotLimit)
	}
}

func TestDatasetReaderAuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewDatasetReader(srv.Client(), srv.URL, "bad", 100)
	_, err := r.Next(context.Background())
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected fatal error on auth rejection, got %v", err)
	}
}
