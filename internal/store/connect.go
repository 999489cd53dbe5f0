package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// Connector opens the SQLite database a Store will use.
type Connector interface {
	Connect(ctx context.Context, path string) (*sql.DB, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, path string) (*sql.DB, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, path string) (*sql.DB, error) {
	return f(ctx, path)
}

// FileConnector opens the database file at path, creating it if needed.
var FileConnector Connector = ConnectorFunc(func(ctx context.Context, path string) (*sql.DB, error) {
	return connect(ctx, fileURI(path))
})

// MemoryConnector ignores path and opens a private in-memory database. The
// database lives as long as the Store that owns it.
var MemoryConnector Connector = ConnectorFunc(func(ctx context.Context, _ string) (*sql.DB, error) {
	return connect(ctx, ":memory:")
})

// fileURI renders path as an SQLite URI filename. The driver splits a plain
// filename at the first '?', so characters with a meaning in URIs are
// percent-encoded instead.
func fileURI(path string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath()
}

func connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
