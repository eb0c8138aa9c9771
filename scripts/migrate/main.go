package main

import (
	"database/sql"
	"flag"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"parimutuel-market/internal/config"
	"parimutuel-market/internal/logging"
)

// Applies every *.sql file in -dir that is not yet recorded in
// schema_migrations, in file name order.
func main() {
	dir := flag.String("dir", "migrations", "directory holding the .sql migration files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name       VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		log.Fatalf("Failed to create schema_migrations: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil {
		log.Fatalf("Failed to list migrations: %v", err)
	}
	sort.Strings(files)

	applied := 0
	for _, path := range files {
		name := filepath.Base(path)

		var exists bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
			log.Fatalf("Failed to check migration %s: %v", name, err)
		}
		if exists {
			continue
		}

		body, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read migration file: %v", err)
		}
		if err := apply(db, name, string(body)); err != nil {
			log.Fatalf("Failed to apply migration %s: %v", name, err)
		}
		log.WithField("migration", name).Info("Migration applied")
		applied++
	}

	log.WithField("applied", applied).Info("Migrations complete")
}

func apply(db *sql.DB, name, body string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(body); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
