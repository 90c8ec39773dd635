package store

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// CreateSchema creates the database schema if it doesn't exist.
func CreateSchema(db *sql.DB) error {
	if err := createSchemaVersionTable(db); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	if err := createScansTable(db); err != nil {
		return fmt.Errorf("creating scans table: %w", err)
	}

	if err := createScanRulesTable(db); err != nil {
		return fmt.Errorf("creating scan_rules table: %w", err)
	}

	if err := createResultsTable(db); err != nil {
		return fmt.Errorf("creating results table: %w", err)
	}

	if err := createMatchesTable(db); err != nil {
		return fmt.Errorf("creating matches table: %w", err)
	}

	if err := createAnnotationsTable(db); err != nil {
		return fmt.Errorf("creating annotations table: %w", err)
	}

	return nil
}

func createSchemaVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Insert version if table is empty
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if err != nil {
		return err
	}

	if count == 0 {
		_, err = db.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion)
		return err
	}

	return nil
}

func createScansTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY NOT NULL,
			source TEXT NOT NULL,
			mode TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			total_scanned INTEGER NOT NULL DEFAULT 0,
			files_with_matches INTEGER NOT NULL DEFAULT 0,
			total_matches INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

func createScanRulesTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scan_rules (
			scan_id TEXT NOT NULL REFERENCES scans(id),
			seq INTEGER NOT NULL,
			namespace TEXT NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (scan_id, seq)
		)
	`)
	return err
}

func createResultsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id TEXT NOT NULL REFERENCES scans(id),
			seq INTEGER NOT NULL,
			file TEXT NOT NULL,
			has_package INTEGER NOT NULL DEFAULT 0,
			package TEXT,
			version TEXT,
			sha256 TEXT,
			type TEXT,
			UNIQUE(scan_id, seq)
		)
	`)
	return err
}

func createMatchesTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			result_id INTEGER NOT NULL REFERENCES results(id),
			seq INTEGER NOT NULL,
			rule TEXT NOT NULL,
			namespace TEXT NOT NULL,
			severity TEXT NOT NULL,
			tags_json TEXT NOT NULL,
			meta_json TEXT NOT NULL,
			strings_json TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create index for efficient match lookup by result
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_matches_result_id ON matches(result_id)
	`)
	return err
}

func createAnnotationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS annotations (
			scan_id TEXT NOT NULL REFERENCES scans(id),
			key TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			comment TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (scan_id, key)
		)
	`)
	return err
}
