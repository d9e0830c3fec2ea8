package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/fingerprint"
)

// IOError wraps persistence failures. Callers treat it as "cache miss", never
// as a build-fatal condition.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("cache %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Store persists cache entries to SQLite so a restarted process can reuse
// artifacts without re-fingerprinting unchanged inputs.
// Use ":memory:" for an in-memory database, or a file path for persistence.
type Store struct {
	db *sql.DB
}

func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, &IOError{Op: "initialize", Err: err}
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		key TEXT PRIMARY KEY,
		artifact BLOB NOT NULL,
		deps TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_last_used ON artifacts(last_used_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns all persisted entries ordered most recently used first,
// matching what Cache.Restore expects.
func (s *Store) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, artifact, deps, title, size, created_at, last_used_at FROM artifacts ORDER BY last_used_at DESC")
	if err != nil {
		return nil, &IOError{Op: "load", Err: err}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			key, depsJSON, title   string
			artifact               []byte
			size, created, lastUse int64
		)
		if err := rows.Scan(&key, &artifact, &depsJSON, &title, &size, &created, &lastUse); err != nil {
			return nil, &IOError{Op: "scan", Err: err}
		}

		var deps []docid.NodeRef
		if err := json.Unmarshal([]byte(depsJSON), &deps); err != nil {
			// A corrupt row degrades to a miss for that key.
			continue
		}

		entries = append(entries, Entry{
			Key:        fingerprint.Fingerprint(key),
			Artifact:   artifact,
			Deps:       deps,
			Title:      title,
			Size:       size,
			CreatedAt:  time.Unix(created, 0),
			LastUsedAt: time.Unix(lastUse, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "load", Err: err}
	}
	return entries, nil
}

// Flush synchronizes the table with the given resident set: entries are
// upserted and rows for keys no longer resident are deleted.
func (s *Store) Flush(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &IOError{Op: "flush", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		depsJSON, err := json.Marshal(e.Deps)
		if err != nil {
			return &IOError{Op: "flush", Err: err}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO artifacts (key, artifact, deps, title, size, created_at, last_used_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET last_used_at = excluded.last_used_at`,
			string(e.Key), e.Artifact, string(depsJSON), e.Title, e.Size,
			e.CreatedAt.Unix(), e.LastUsedAt.Unix())
		if err != nil {
			return &IOError{Op: "flush", Err: err}
		}
		keep[string(e.Key)] = true
	}

	rows, err := tx.QueryContext(ctx, "SELECT key FROM artifacts")
	if err != nil {
		return &IOError{Op: "flush", Err: err}
	}
	var stale []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return &IOError{Op: "flush", Err: err}
		}
		if !keep[key] {
			stale = append(stale, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &IOError{Op: "flush", Err: err}
	}

	for _, key := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM artifacts WHERE key = ?", key); err != nil {
			return &IOError{Op: "flush", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &IOError{Op: "flush", Err: err}
	}
	return nil
}

// Clear drops all persisted entries (the clean command).
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM artifacts"); err != nil {
		return &IOError{Op: "clear", Err: err}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
