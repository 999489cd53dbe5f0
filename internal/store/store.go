package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/zkapauthz/internal/nodeconfig"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the schema version this code creates and requires.
const SchemaVersion = 1

// DatabaseName is the ledger file name inside the node's private directory.
const DatabaseName = "privatestorageio-zkapauthz-v1.sqlite3"

// Store is the voucher ledger for one node. It owns its database connection;
// callers share the *Store rather than opening the same file twice.
type Store struct {
	path string
	db   *sql.DB
}

// FromNodeConfig opens, creating if necessary, the ledger kept in the
// private directory of the node described by cfg. A nil connector means
// FileConnector.
//
// Failure to create the private directory or to open the database file is
// reported as a *StoreOpenError; a version mismatch as a *SchemaError.
func FromNodeConfig(ctx context.Context, cfg nodeconfig.Config, connector Connector) (*Store, error) {
	return OpenAndInitialize(ctx, cfg.PrivatePath(DatabaseName), SchemaVersion, connector)
}

// OpenAndInitialize opens the database at path and creates the schema if it
// does not exist yet. The parent directory is created as needed.
//
// The stored schema version is compared with requiredSchemaVersion before any
// other read or write; a mismatch returns *SchemaError and leaves the
// database unchanged. A nil connector means FileConnector.
func OpenAndInitialize(ctx context.Context, path string, requiredSchemaVersion int, connector Connector) (*Store, error) {
	if connector == nil {
		connector = FileConnector
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, &StoreOpenError{Reason: err}
	}

	db, err := connector.Connect(ctx, path)
	if err != nil {
		return nil, &StoreOpenError{Reason: err}
	}

	// Reading the catalog forces SQLite to read the file header, which is
	// where unreadable and corrupt files are detected.
	var objects int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&objects); err != nil {
		db.Close()
		return nil, &StoreOpenError{Reason: err}
	}

	if err := applyPragmas(ctx, db, connectionPragmas); err != nil {
		db.Close()
		return nil, &StoreOpenError{Reason: err}
	}

	if err := initialize(ctx, db, requiredSchemaVersion); err != nil {
		db.Close()
		return nil, err
	}

	// Switching to WAL rewrites the file header, so it waits until the
	// version check has accepted the database.
	if err := applyPragmas(ctx, db, journalPragmas); err != nil {
		db.Close()
		return nil, &StoreOpenError{Reason: err}
	}

	return &Store{path: path, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location the store was opened at.
func (s *Store) Path() string {
	return s.path
}

// connectionPragmas configure the connection only and leave the file alone.
var connectionPragmas = []string{
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// journalPragmas change the database file itself.
var journalPragmas = []string{
	"PRAGMA journal_mode = WAL",
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB, pragmas []string) error {
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// initialize stamps a new database with the version this code knows how to
// create, checks the stamp against required, then creates the tables. All of
// it happens in one transaction.
func initialize(ctx context.Context, db *sql.DB, required int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("initialize schema: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stamp := fmt.Sprintf("CREATE TABLE IF NOT EXISTS schema_version AS SELECT %d AS version", SchemaVersion)
	if _, err := tx.ExecContext(ctx, stamp); err != nil {
		return fmt.Errorf("initialize schema: stamp version: %w", err)
	}

	var actual int
	if err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&actual); err != nil {
		return fmt.Errorf("initialize schema: read version: %w", err)
	}
	if actual != required {
		return &SchemaError{Required: required, Actual: actual}
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("initialize schema: create tables: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("initialize schema: commit: %w", err)
	}
	return nil
}
