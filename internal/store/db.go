package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite archive written by the bridge.
type DB struct {
	*sql.DB
}

// Open creates a read-write SQLite connection with WAL mode and recommended
// pragmas. Used by init and tests; the server opens read-only.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// OpenReadOnly opens an existing archive without write access. The bridge keeps
// ownership of the file; we never create or migrate it here.
func OpenReadOnly(path string) (*DB, error) {
	u := url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro&_busy_timeout=5000"}
	db, err := sql.Open("sqlite3", u.String())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// Reader is a single pooled connection held for the duration of one operation.
// It must be closed.
type Reader struct {
	conn *sql.Conn
}

// Reader checks out a connection.
func (db *DB) Reader(ctx context.Context) (*Reader, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Reader{conn: conn}, nil
}

// Close returns the connection to the pool.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// Stats summarizes archive size.
type Stats struct {
	Chats    int64
	Messages int64
}

// Stats counts chats and messages.
func (r *Reader) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&s.Chats); err != nil {
		return Stats{}, fmt.Errorf("count chats: %w", err)
	}
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&s.Messages); err != nil {
		return Stats{}, fmt.Errorf("count messages: %w", err)
	}
	return s, nil
}

// Stats counts chats and messages on a fresh connection.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	r, err := db.Reader(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer func() { _ = r.Close() }()
	return r.Stats(ctx)
}
