package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/podscript/pkg/script"
)

// Schema is the SQL DDL for the script_snapshots table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS script_snapshots (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    snapshot    JSONB NOT NULL,
    statistics  JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_script_snapshots_updated ON script_snapshots(updated_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. The snapshot
// document is kept as JSONB next to its precomputed statistics so that List
// never has to decode whole scripts.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] that uses the given connection
// or pool. The caller is responsible for calling [PostgresStore.Migrate].
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPool opens a pgx connection pool for dsn and verifies it with a ping.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save implements [Store].
func (s *PostgresStore) Save(ctx context.Context, id string, snap *script.Snapshot) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := checkSnapshot(id, snap); err != nil {
		return err
	}
	var doc bytes.Buffer
	if err := snap.Encode(&doc); err != nil {
		return fmt.Errorf("store: save %q: %w", id, err)
	}
	statsJSON, err := json.Marshal(snap.CalculateStatistics())
	if err != nil {
		return fmt.Errorf("store: marshal statistics: %w", err)
	}

	const query = `
		INSERT INTO script_snapshots (id, title, snapshot, statistics)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			snapshot = EXCLUDED.snapshot,
			statistics = EXCLUDED.statistics,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query, id, snap.Title, doc.Bytes(), statsJSON); err != nil {
		return fmt.Errorf("store: save %q: %w", id, err)
	}
	return nil
}

// Load implements [Store].
func (s *PostgresStore) Load(ctx context.Context, id string) (*script.Snapshot, error) {
	const query = `SELECT snapshot FROM script_snapshots WHERE id = $1`

	var doc []byte
	if err := s.db.QueryRow(ctx, query, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store: load %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: load %q: %w", id, err)
	}
	snap, err := script.DecodeSnapshot(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("store: load %q: %w", id, err)
	}
	if err := checkSnapshot(id, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT id, title, statistics, updated_at
		FROM script_snapshots
		ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var statsJSON []byte
		if err := rows.Scan(&e.ID, &e.Title, &statsJSON, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		if err := json.Unmarshal(statsJSON, &e.Stats); err != nil {
			return nil, fmt.Errorf("store: unmarshal statistics of %q: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM script_snapshots WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: delete %q: %w", id, ErrNotFound)
	}
	return nil
}

// Ping implements [Pinger] with a trivial round trip.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
