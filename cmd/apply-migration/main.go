package main

import (
	"log"
	"os"

	_ "github.com/lib/pq"

	"taphouse-backend/internal/config"
	"taphouse-backend/internal/database"
)

// Applies a SQL migration file against the configured database.
// Usage: apply-migration migrations/0001_baseline.sql
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <migration_file.sql>", os.Args[0])
	}

	sqlContent, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read migration file: %v", err)
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	// A migration file runs as one transaction; dollar-quoted bodies
	// make statement splitting unreliable.
	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	if _, err := tx.Exec(string(sqlContent)); err != nil {
		tx.Rollback()
		log.Fatalf("Migration failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit migration: %v", err)
	}

	log.Printf("Applied %s", os.Args[1])
}
