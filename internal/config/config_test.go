package config

import (
	"testing"
	"time"
)

func TestLoadRequiresASource(t *testing.T) {
	t.Setenv("SOURCE_FILE", "")
	t.Setenv("DATASET_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when no source is configured")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SOURCE_FILE", "testdata/places.ndjson")
	t.Setenv("DATASET_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Import.BatchSize != 50 {
		t.Fatalf("expected default batch size 50, got %d", cfg.Import.BatchSize)
	}
	if cfg.Import.BatchDelay != 2*time.Second {
		t.Fatalf("expected default batch delay 2s, got %s", cfg.Import.BatchDelay)
	}
	if cfg.Image.MaxLongEdge != 1600 || cfg.Image.JPEGQuality != 80 {
		t.Fatalf("unexpected image defaults: %+v", cfg.Image)
	}
	if cfg.Image.DownloadRate != 5 {
		t.Fatalf("expected 5 downloads/s, got %f", cfg.Image.DownloadRate)
	}
}

func TestLoadRejectsBadTuning(t *testing.T) {
	t.Setenv("SOURCE_FILE", "testdata/places.ndjson")
	t.Setenv("IMPORT_BATCH_SIZE", "zero")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed IMPORT_BATCH_SIZE")
	}
}

func TestLoadRejectsMalformedDurations(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"IMPORT_BATCH_DELAY", "2 seconds"},
		{"IMPORT_BATCH_DELAY", "-1s"},
		{"IMAGE_DOWNLOAD_TIMEOUT", "soon"},
	}

	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv("SOURCE_FILE", "testdata/places.ndjson")
			t.Setenv(tc.key, tc.value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestParseRate(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "5/s", want: 5},
		{in: "120/min", want: 2},
		{in: "0/s", want: 0},
		{in: "5", wantErr: true},
		{in: "x/s", wantErr: true},
		{in: "5/fortnight", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parseRate(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseRate(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRate(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseRate(%q) = %f, want %f", tc.in, got, tc.want)
		}
	}
}
