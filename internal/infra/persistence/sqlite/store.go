// Package sqlite provides a SQLite-backed snapshot store. Each document is a
// single row keyed by definition path and slot, with the flat value document
// serialized as JSON.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"itemcore/pkg/schema"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the schema interface.
var _ schema.SnapshotStore = (*Store)(nil)

const defaultPath = "itemcore.db"

// Store persists flat value documents to a single SQLite table.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) a SQLite database at path and ensures
// the snapshots table exists. An empty path falls back to itemcore.db in the
// working directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		definition_path TEXT NOT NULL,
		slot_id TEXT NOT NULL,
		slot_version TEXT NOT NULL,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (definition_path, slot_id, slot_version)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Save upserts the document for the given definition path and slot.
func (s *Store) Save(ctx context.Context, definitionPath string, slot schema.SlotKey, value map[string]any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO snapshots(definition_path, slot_id, slot_version, payload, updated_at)
		VALUES(?,?,?,?,datetime('now'))
		ON CONFLICT(definition_path, slot_id, slot_version) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		definitionPath, slot.ID, slot.Version, payload); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Load returns the stored document, reporting presence explicitly.
func (s *Store) Load(ctx context.Context, definitionPath string, slot schema.SlotKey) (map[string]any, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE definition_path=? AND slot_id=? AND slot_version=?`,
		definitionPath, slot.ID, slot.Version).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select snapshot: %w", err)
	}
	var value map[string]any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return value, true, nil
}

// Delete removes the document; deleting an absent document is not an error.
func (s *Store) Delete(ctx context.Context, definitionPath string, slot schema.SlotKey) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE definition_path=? AND slot_id=? AND slot_version=?`,
		definitionPath, slot.ID, slot.Version); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Slots lists stored slots for a definition, sorted by id then version.
func (s *Store) Slots(ctx context.Context, definitionPath string) ([]schema.SlotKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot_id, slot_version FROM snapshots WHERE definition_path=? ORDER BY slot_id, slot_version`, definitionPath)
	if err != nil {
		return nil, fmt.Errorf("select slots: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []schema.SlotKey
	for rows.Next() {
		var slot schema.SlotKey
		if err := rows.Scan(&slot.ID, &slot.Version); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		out = append(out, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return out, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
