package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/wanderapp/places-importer/internal/config"
	"github.com/wanderapp/places-importer/internal/database"
	"github.com/wanderapp/places-importer/internal/images"
	"github.com/wanderapp/places-importer/internal/report"
	"github.com/wanderapp/places-importer/internal/repository"
	"github.com/wanderapp/places-importer/internal/service"
	"github.com/wanderapp/places-importer/internal/source"
	"github.com/wanderapp/places-importer/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := database.Connect(connectCtx, cfg.DatabaseURL)
	connectCancel()
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer pool.Close()

	reader, err := buildReader(cfg)
	if err != nil {
		log.Fatalf("failed to open source: %v", err)
	}

	repo := repository.NewPGXPlacesRepository(pool)
	tracker := report.NewTracker()

	var ingestor service.ImageIngestor
	if cfg.Storage.Endpoint != "" {
		uploader := storage.NewR2Client(nil, cfg.Storage.Endpoint, cfg.Storage.Bucket, cfg.Storage.Token, cfg.Storage.PublicBaseURL)
		ingestor = images.New(uploader,
			cfg.Image.DownloadTimeout,
			cfg.Image.MaxLongEdge,
			cfg.Image.JPEGQuality,
			images.WithDownloadRate(cfg.Image.DownloadRate),
		)
	} else {
		log.Printf("msg=\"no object storage configured, cover images will be skipped\"")
	}

	importer := service.NewImporter(repo, ingestor, cfg.Import, tracker)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var statusServer *report.Server
	if cfg.ReportAddr != "" {
		statusServer = report.NewServer(tracker)
		go func() {
			if err := statusServer.Start(cfg.ReportAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("status server error: %v", err)
			}
		}()
	}

	log.Printf("run_id=%s msg=\"import starting\" batch_size=%d concurrency=%d",
		tracker.RunID(), cfg.Import.BatchSize, cfg.Import.Concurrency)

	result, runErr := importer.Run(ctx, reader)

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("status server shutdown failed: %v", err)
		}
		shutdownCancel()
	}

	log.Printf("run_id=%s msg=\"import finished\" total=%d inserted=%d updated=%d skipped=%d failed=%d required_coverage=%.3f hours_coverage=%.3f cover_coverage=%.3f errors=%d",
		result.RunID, result.Total, result.Inserted, result.Updated, result.Skipped, result.Failed,
		result.Coverage.RequiredFields, result.Coverage.OpeningHours, result.Coverage.CoverImage, len(result.Errors))
	for _, e := range result.Errors {
		log.Printf("run_id=%s stage=%s key=%s reason=%q", result.RunID, e.Stage, e.Key, e.Reason)
	}

	if runErr != nil {
		log.Printf("run_id=%s msg=\"run terminated by source failure\" err=%q", result.RunID, runErr.Error())
		os.Exit(1)
	}
}

func buildReader(cfg *config.Config) (source.Reader, error) {
	if cfg.Source.FilePath != "" {
		return source.NewFileReader(cfg.Source.FilePath)
	}
	client := &http.Client{Timeout: 60 * time.Second}
	return source.NewDatasetReader(client, cfg.Source.DatasetURL, cfg.Source.Token, cfg.Source.PageSize), nil
}
