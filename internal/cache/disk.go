package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/finsight/finsight/internal/faults"
)

// diskStore persists cache entries in a SQLite database. Each write runs in
// its own implicit transaction, so entries are atomic per key.
type diskStore struct {
	db         *sql.DB
	maxEntries int
}

func openDiskStore(dir string, maxEntries int) (*diskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging cache database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating entries table: %w", err)
	}

	return &diskStore{db: db, maxEntries: maxEntries}, nil
}

func (d *diskStore) get(key string) ([]byte, bool, error) {
	var value []byte
	err := d.db.QueryRow("SELECT value FROM entries WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return value, true, nil
}

func (d *diskStore) set(key string, value []byte) error {
	_, err := d.db.Exec(`
		INSERT INTO entries (key, value, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", faults.ErrTransientIO)
	}
	return d.evict()
}

// evict removes the oldest entries once the store exceeds its cap. Insertion
// order is tracked by rowid, which is monotonic for this table.
func (d *diskStore) evict() error {
	var count int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return fmt.Errorf("counting cache entries: %w", err)
	}
	if count <= d.maxEntries {
		return nil
	}
	_, err := d.db.Exec(`
		DELETE FROM entries WHERE key IN (
			SELECT key FROM entries ORDER BY rowid ASC LIMIT ?
		)`, count-d.maxEntries,
	)
	if err != nil {
		return fmt.Errorf("evicting cache entries: %w", err)
	}
	return nil
}

func (d *diskStore) clear() error {
	if _, err := d.db.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("clearing cache entries: %w", err)
	}
	return nil
}

func (d *diskStore) close() error {
	return d.db.Close()
}
