package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/timmy/callinsight/internal/app"
	"github.com/timmy/callinsight/internal/config"
	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/service"
)

func main() {
	log := app.InitLogger("callinsight-ingest")
	defer app.SyncLogger()

	eventPath := flag.String("event", "-", "S3 event notification JSON file, - for stdin")
	bucket := flag.String("bucket", "", "Ingest a single object from this bucket instead of an event")
	key := flag.String("key", "", "Object key for -bucket")
	upload := flag.String("upload", "", "Upload a local audio file to the storage bucket, then ingest it")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := app.SignalContext()
	defer stop()

	a := app.New(cfg, "ingest")
	defer a.Close(context.Background())

	svc, err := a.IngestService(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize ingest service")
	}

	var stats service.IngestStats
	switch {
	case *upload != "":
		stats, err = uploadAndIngest(ctx, a, svc, *upload)
	case *bucket != "":
		stats, err = ingestObject(ctx, svc, *bucket, *key, 0)
	default:
		stats, err = ingestEvent(ctx, svc, *eventPath)
	}
	if err != nil {
		log.WithError(err).Fatal("Ingestion failed")
	}

	log.WithFields(logger.Fields{
		"processed": stats.Processed,
		"skipped":   stats.Skipped,
		"errors":    stats.Errors,
	}).Info("Ingestion completed")
	if stats.Errors > 0 {
		os.Exit(1)
	}
}

func ingestEvent(ctx context.Context, svc *service.IngestService, path string) (service.IngestStats, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return service.IngestStats{}, err
		}
		defer f.Close()
		r = f
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return service.IngestStats{}, fmt.Errorf("failed to read event: %w", err)
	}
	return svc.HandleEventJSON(ctx, body)
}

func ingestObject(ctx context.Context, svc *service.IngestService, bucket, key string, size int64) (service.IngestStats, error) {
	if key == "" {
		return service.IngestStats{}, fmt.Errorf("-key is required with -bucket")
	}
	return svc.IngestKey(ctx, bucket, key, size), nil
}

func uploadAndIngest(ctx context.Context, a *app.App, svc *service.IngestService, path string) (service.IngestStats, error) {
	store, err := a.Storage(ctx)
	if err != nil {
		return service.IngestStats{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return service.IngestStats{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return service.IngestStats{}, err
	}

	key := "recordings/" + filepath.Base(path)
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return service.IngestStats{}, err
	}
	if exists {
		// Re-running an upload only re-queues; the job id is the same.
		logger.GetDefault().WithField("uri", store.URI(key)).Info("Recording already uploaded")
	} else {
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := store.Upload(ctx, key, f, info.Size(), contentType); err != nil {
			return service.IngestStats{}, err
		}
		logger.GetDefault().WithField("uri", store.URI(key)).Info("Uploaded recording")
	}

	return ingestObject(ctx, svc, store.Bucket(), key, info.Size())
}
