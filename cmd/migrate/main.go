package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/lib/pq"

	"qa-escrow/internal/config"
)

func main() {
	dir := flag.String("dir", "migrations", "directory containing *.sql migrations")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		log.Fatalf("SQL migrations target postgres; %s databases are migrated on startup", cfg.Database.Driver)
	}

	// Connect to database
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database successfully")

	applied, err := applyMigrations(db, *dir)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Printf("Migrations complete: %d applied", applied)
}

// applyMigrations runs every file in dir that is not yet recorded in
// schema_migrations, in lexical order, each in its own transaction.
func applyMigrations(db *sql.DB, dir string) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return 0, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	applied := 0
	for _, path := range files {
		name := filepath.Base(path)

		var exists bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
			return applied, fmt.Errorf("failed to check %s: %w", name, err)
		}
		if exists {
			continue
		}

		sqlBytes, err := os.ReadFile(path)
		if err != nil {
			return applied, fmt.Errorf("failed to read %s: %w", name, err)
		}

		log.Printf("Applying migration: %s", name)
		tx, err := db.Begin()
		if err != nil {
			return applied, fmt.Errorf("failed to begin %s: %w", name, err)
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to apply %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to record %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("failed to commit %s: %w", name, err)
		}
		applied++
	}

	return applied, nil
}
