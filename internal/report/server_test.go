package report

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wanderapp/places-importer/internal/entity"
)

func TestServerHealthz(t *testing.T) {
	s := NewServer(NewTracker())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var payload APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Status != "success" {
		t.Fatalf("unexpected response: %+v", payload)
	}
}

func TestServerGeneratesRequestID(t *testing.T) {
	s := NewServer(NewTracker())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestServerKeepsCallerRequestID(t *testing.T) {
	s := NewServer(NewTracker())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "caller-id")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "caller-id" {
		t.Fatalf("expected caller-supplied id, got %q", got)
	}
}

func TestServerReport(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordInserted()
	tracker.RecordSkipped("place-1", "missing city")

	s := NewServer(tracker)
	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var payload struct {
		Status string           `json:"status"`
		Data   entity.RunReport `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Status != "success" {
		t.Fatalf("unexpected status: %q", payload.Status)
	}
	if payload.Data.Total != 2 || payload.Data.Inserted != 1 || payload.Data.Skipped != 1 {
		t.Fatalf("unexpected report payload: %+v", payload.Data)
	}
	if len(payload.Data.Errors) != 1 || payload.Data.Errors[0].Stage != StageValidation {
		t.Fatalf("expected validation error entry, got %v", payload.Data.Errors)
	}
}
