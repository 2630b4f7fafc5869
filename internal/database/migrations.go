// ===============================
// internal/database/migrations.go - Series Catalog Schema
// ===============================

package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

func RunMigrations(db *sqlx.DB) error {
	log.Println("📄 Running series catalog migrations...")

	// Check if migrations table exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			version VARCHAR(255) UNIQUE NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations := []Migration{
		{
			Version: "001_series_documents",
			Query: `
				-- One document per series. The nested language/season/quality
				-- tree lives in a single JSONB column so every catalog write
				-- is atomic per document.
				CREATE TABLE IF NOT EXISTS series (
					name_key VARCHAR(255) PRIMARY KEY,
					title VARCHAR(255) NOT NULL,
					year VARCHAR(20) DEFAULT '',
					genre VARCHAR(255) DEFAULT '',
					rating VARCHAR(20) DEFAULT '',
					poster_url TEXT DEFAULT '',
					published BOOLEAN DEFAULT false,
					languages JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_series_created_at ON series(created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_series_published ON series(published) WHERE published = true;
			`,
		},
		{
			Version: "002_auth_users",
			Query: `
				-- Dynamic operator allow-list, loaded into memory at startup.
				CREATE TABLE IF NOT EXISTS auth_users (
					user_id BIGINT PRIMARY KEY,
					added_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}

	for _, migration := range migrations {
		if err := applyMigration(db, migration); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Version, err)
		}
	}

	log.Println("✅ All migrations applied")
	return nil
}

type Migration struct {
	Version string
	Query   string
}

func applyMigration(db *sqlx.DB, migration Migration) error {
	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM migrations WHERE version = $1", migration.Version)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.Query); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES ($1)", migration.Version); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("   • Applied migration %s", migration.Version)
	return nil
}
