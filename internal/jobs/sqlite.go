package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultSQLitePath is the database file used when none is configured.
const DefaultSQLitePath = "jobs.sqlite"

const sqliteSchema = `CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	spec       TEXT NOT NULL,
	state      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteBackend stores entries in a single SQLite table.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Load(ctx context.Context) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT spec, state FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var spec, state string
		if err := rows.Scan(&spec, &state); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		e, err := decodeEntry([]byte(spec), []byte(state))
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (b *SQLiteBackend) Put(ctx context.Context, entry Entry) error {
	spec, state, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = b.db.ExecContext(ctx, `INSERT INTO jobs (id, spec, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET spec = excluded.spec, state = excluded.state, updated_at = excluded.updated_at`,
		entry.Spec.ID, string(spec), string(state), entry.Spec.CreatedAt.UTC().Format(time.RFC3339Nano), now)
	if err != nil {
		return fmt.Errorf("sqlite: put %s: %w", entry.Spec.ID, err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func encodeEntry(e Entry) (spec, state []byte, err error) {
	spec, err = json.Marshal(e.Spec)
	if err != nil {
		return nil, nil, fmt.Errorf("encode spec %s: %w", e.Spec.ID, err)
	}
	state, err = json.Marshal(e.State)
	if err != nil {
		return nil, nil, fmt.Errorf("encode state %s: %w", e.Spec.ID, err)
	}
	return spec, state, nil
}

func decodeEntry(spec, state []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(spec, &e.Spec); err != nil {
		return Entry{}, fmt.Errorf("decode spec: %w", err)
	}
	if err := json.Unmarshal(state, &e.State); err != nil {
		return Entry{}, fmt.Errorf("decode state %s: %w", e.Spec.ID, err)
	}
	return e, nil
}
