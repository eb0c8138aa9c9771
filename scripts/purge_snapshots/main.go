package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"parimutuel-market/internal/archive"
	"parimutuel-market/internal/config"
	"parimutuel-market/internal/database"
	"parimutuel-market/internal/logging"
	"parimutuel-market/internal/repository"
	"parimutuel-market/internal/services"
)

// One-shot retention run: archives (when a bucket is configured) and deletes
// odds snapshots older than the retention window.
func main() {
	retention := flag.Duration("retention", 0, "override SNAPSHOT_RETENTION")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	if *retention > 0 {
		cfg.Snapshot.Retention = *retention
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var archiver services.SnapshotArchiver
	if cfg.Archive.Bucket != "" {
		writer, err := archive.NewS3Writer(ctx, archive.ClientConfig{
			Bucket:         cfg.Archive.Bucket,
			Region:         cfg.Archive.Region,
			Endpoint:       cfg.Archive.Endpoint,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			log.Fatalf("Failed to configure snapshot archive: %v", err)
		}
		archiver = archive.NewSnapshotArchiver(writer, "")
	}

	snapshots := services.NewSnapshotService(repository.NewRepository(db), archiver, services.SnapshotOptions{
		Retention: cfg.Snapshot.Retention,
	}, log)

	deleted, err := snapshots.Purge(ctx)
	if err != nil {
		log.Fatalf("Purge failed: %v", err)
	}
	log.WithFields(logrus.Fields{
		"deleted":   deleted,
		"retention": cfg.Snapshot.Retention.String(),
	}).Info("Snapshot purge complete")
}
