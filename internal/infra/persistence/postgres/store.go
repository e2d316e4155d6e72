// Package postgres provides a Postgres-backed snapshot store mirroring the
// SQLite layout, with documents stored as JSONB rows.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"itemcore/pkg/schema"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the schema interface.
var _ schema.SnapshotStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenSnapshotStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/itemcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists flat value documents to a Postgres snapshots table.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), verifies connectivity, and ensures the snapshots table
// exists.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSnapshotsTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSnapshotsTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS snapshots (
		definition_path TEXT NOT NULL,
		slot_id TEXT NOT NULL,
		slot_version TEXT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (definition_path, slot_id, slot_version)
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure snapshots table: %w", err)
	}
	return nil
}

// Save upserts the document for the given definition path and slot.
func (s *Store) Save(ctx context.Context, definitionPath string, slot schema.SlotKey, value map[string]any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO snapshots(definition_path, slot_id, slot_version, payload, updated_at)
		VALUES($1,$2,$3,$4,now())
		ON CONFLICT(definition_path, slot_id, slot_version) DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
		definitionPath, slot.ID, slot.Version, payload); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Load returns the stored document, reporting presence explicitly.
func (s *Store) Load(ctx context.Context, definitionPath string, slot schema.SlotKey) (map[string]any, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE definition_path=$1 AND slot_id=$2 AND slot_version=$3`,
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE definition_path=$1 AND slot_id=$2 AND slot_version=$3`,
		definitionPath, slot.ID, slot.Version); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Slots lists stored slots for a definition, sorted by id then version.
func (s *Store) Slots(ctx context.Context, definitionPath string) ([]schema.SlotKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot_id, slot_version FROM snapshots WHERE definition_path=$1 ORDER BY slot_id, slot_version`, definitionPath)
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

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
