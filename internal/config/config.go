package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SourceConfig selects where raw scraped records come from. When FilePath
// is set the run reads from disk; otherwise DatasetURL + Token drive the
// paginated dataset client.
type SourceConfig struct {
	FilePath   string
	DatasetURL string
	Token      string
	PageSize   int
}

// StorageConfig wires the object-storage collaborator for cover images.
type StorageConfig struct {
	Endpoint      string
	Bucket        string
	Token         string
	PublicBaseURL string
}

// ImageConfig tunes the image-ingestion pipeline.
type ImageConfig struct {
	DownloadTimeout time.Duration
	MaxLongEdge     int
	JPEGQuality     int
	// Downloads per second across the whole run; zero disables pacing.
	DownloadRate float64
}

// ImportConfig tunes batching and concurrency of the reconciliation run.
type ImportConfig struct {
	BatchSize   int
	Concurrency int
	// Pause inserted after each batch's persistence step. A fairness
	// policy toward the datastore, not a correctness requirement.
	BatchDelay time.Duration
}

// Config aggregates application-wide configuration values.
type Config struct {
	DatabaseURL string
	Source      SourceConfig
	Storage     StorageConfig
	Image       ImageConfig
	Import      ImportConfig
	// ReportAddr, when set, starts the status endpoint for the run.
	ReportAddr string
}

// Load reads configuration from environment variables and applies sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Source: SourceConfig{
			FilePath:   os.Getenv("SOURCE_FILE"),
			DatasetURL: os.Getenv("DATASET_URL"),
			Token:      os.Getenv("DATASET_TOKEN"),
		},
		Storage: StorageConfig{
			Endpoint:      os.Getenv("R2_ENDPOINT"),
			Bucket:        getEnv("R2_BUCKET", "place-images"),
			Token:         os.Getenv("R2_TOKEN"),
			PublicBaseURL: strings.TrimRight(os.Getenv("R2_PUBLIC_BASE_URL"), "/"),
		},
		ReportAddr: os.Getenv("REPORT_ADDR"),
	}

	var err error
	if cfg.Source.PageSize, err = parsePositiveInt(getEnv("DATASET_PAGE_SIZE", "500")); err != nil {
		return nil, fmt.Errorf("invalid DATASET_PAGE_SIZE value: %w", err)
	}
	if cfg.Import.BatchSize, err = parsePositiveInt(getEnv("IMPORT_BATCH_SIZE", "50")); err != nil {
		return nil, fmt.Errorf("invalid IMPORT_BATCH_SIZE value: %w", err)
	}
	if cfg.Import.Concurrency, err = parsePositiveInt(getEnv("IMPORT_CONCURRENCY", "8")); err != nil {
		return nil, fmt.Errorf("invalid IMPORT_CONCURRENCY value: %w", err)
	}
	if cfg.Import.BatchDelay, err = parseDuration(getEnv("IMPORT_BATCH_DELAY", "2s")); err != nil {
		return nil, fmt.Errorf("invalid IMPORT_BATCH_DELAY value: %w", err)
	}

	if cfg.Image.DownloadTimeout, err = parseDuration(getEnv("IMAGE_DOWNLOAD_TIMEOUT", "30s")); err != nil {
		return nil, fmt.Errorf("invalid IMAGE_DOWNLOAD_TIMEOUT value: %w", err)
	}
	if cfg.Image.MaxLongEdge, err = parsePositiveInt(getEnv("IMAGE_MAX_LONG_EDGE", "1600")); err != nil {
		return nil, fmt.Errorf("invalid IMAGE_MAX_LONG_EDGE value: %w", err)
	}
	if cfg.Image.JPEGQuality, err = parsePositiveInt(getEnv("IMAGE_JPEG_QUALITY", "80")); err != nil {
		return nil, fmt.Errorf("invalid IMAGE_JPEG_QUALITY value: %w", err)
	}
	if cfg.Image.JPEGQuality > 100 {
		return nil, fmt.Errorf("invalid IMAGE_JPEG_QUALITY value: %d exceeds 100", cfg.Image.JPEGQuality)
	}
	cfg.Image.DownloadRate, err = parseRate(getEnv("IMAGE_DOWNLOAD_RATE", "5/s"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_DOWNLOAD_RATE value: %w", err)
	}

	if cfg.Source.FilePath == "" && cfg.Source.DatasetURL == "" {
		return nil, fmt.Errorf("either SOURCE_FILE or DATASET_URL must be set")
	}

	return cfg, nil
}

// parseRate interprets "<count>/<interval unit>" strings, e.g. "5/s".
func parseRate(value string) (float64, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected format <count>/<interval>, got %q", value)
	}

	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count < 0 {
		return 0, fmt.Errorf("invalid count: %v", parts[0])
	}

	unit := strings.ToLower(strings.TrimSpace(parts[1]))
	var interval time.Duration
	switch unit {
	case "s", "sec", "second", "seconds":
		interval = time.Second
	case "m", "min", "minute", "minutes":
		interval = time.Minute
	case "h", "hr", "hour", "hours":
		interval = time.Hour
	default:
		return 0, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	return float64(count) / interval.Seconds(), nil
}

func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseDuration(input string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(input))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", d)
	}
	return d, nil
}
