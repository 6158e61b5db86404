package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/podscribe/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the user_version a fully migrated database reports.
const CurrentSchemaVersion = 2

// FileName is the database file created inside the base directory.
const FileName = "podscribe.db"

// Init opens (creating if needed) baseDir/podscribe.db, verifies WAL mode
// and brings the schema up to CurrentSchemaVersion.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Exports land next to the database unless allowed_paths says otherwise
	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies the pool limits set in cfg. Zero values leave
// database/sql defaults alone.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate steps the schema forward from the stored user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: one row per cache key, flat string columns
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS transcripts (
		  cache_key   TEXT PRIMARY KEY,
		  source_url  TEXT NOT NULL,
		  text        TEXT NOT NULL,
		  utterances  TEXT NOT NULL,
		  summary     TEXT NOT NULL DEFAULT '',
		  chapters    TEXT,
		  entities    TEXT,
		  sentiment   TEXT,
		  created_at  INTEGER NOT NULL,
		  updated_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_transcripts_updated
		ON transcripts(updated_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: record schema version and per-write revision.
	// Rows written before this migration read as record schema 0 (legacy).
	if version < 2 {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		stmts := []string{
			`ALTER TABLE transcripts ADD COLUMN schema_version INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE transcripts ADD COLUMN revision TEXT NOT NULL DEFAULT ''`,
			`CREATE INDEX IF NOT EXISTS idx_transcripts_source_url ON transcripts(source_url)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration 2 failed: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode fails unless the DSN pragma put the database in WAL mode.
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("read journal_mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("journal_mode is %s, want wal", journalMode)
	}
	return nil
}

// GetUserVersion reads PRAGMA user_version.
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion writes PRAGMA user_version.
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}
	return nil
}
