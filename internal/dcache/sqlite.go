package dcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace   TEXT PRIMARY KEY,
	computed_at INTEGER NOT NULL,
	payload     BLOB NOT NULL
);`

// SQLiteStore backs the discovery cache with a local SQLite database. Each
// Put is a single transaction, so a reader in another process sees either
// the previous row or the new one.
type SQLiteStore struct {
	db *sql.DB

	// Now is the clock used for freshness checks; tests override it.
	Now func() time.Time
}

// OpenSQLiteStore opens (creating if needed) the cache database at dbPath.
func OpenSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite works best with a single connection for writes.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &SQLiteStore{db: db, Now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the cached payload for namespace if it is younger than maxAge.
func (s *SQLiteStore) Get(ctx context.Context, namespace string, maxAge time.Duration) ([]byte, error) {
	if maxAge <= 0 {
		return nil, ErrStale
	}

	var computedAt int64
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT computed_at, payload FROM cache_entries WHERE namespace = ?`,
		namespace).Scan(&computedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStale
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	if s.Now().Sub(time.Unix(computedAt, 0)) > maxAge {
		return nil, ErrStale
	}

	return payload, nil
}

// Put replaces the entry for namespace with payload and a fresh timestamp.
func (s *SQLiteStore) Put(ctx context.Context, namespace string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, computed_at, payload) VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET computed_at = excluded.computed_at, payload = excluded.payload`,
		namespace, s.Now().Unix(), payload)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}
