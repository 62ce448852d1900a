package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createAlertsTableSQL = `CREATE TABLE IF NOT EXISTS tv_alerts (
        record_key  TEXT PRIMARY KEY,
        received_at TIMESTAMPTZ NOT NULL,
        source      TEXT NOT NULL DEFAULT '',
        ticker      TEXT,
        raw         JSONB NOT NULL,
        parsed      JSONB NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertAlertSQL = `INSERT INTO tv_alerts (
        record_key,
        received_at,
        source,
        ticker,
        raw,
        parsed
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (record_key) DO NOTHING;`

	countAlertsSQL = `SELECT COUNT(*) FROM tv_alerts;`
)

// PostgresMirror copies accepted records into the tv_alerts table.
type PostgresMirror struct {
	pool *pgxpool.Pool
}

// NewPostgresMirror wires a pgx pool into a PostgresMirror.
func NewPostgresMirror(pool *pgxpool.Pool) *PostgresMirror {
	return &PostgresMirror{pool: pool}
}

// Name implements RecordSink.
func (s *PostgresMirror) Name() string { return "postgres" }

// Close releases the underlying pool resources.
func (s *PostgresMirror) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresMirror) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the mirror table when it does not exist yet.
func (s *PostgresMirror) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createAlertsTableSQL); execErr != nil {
		return fmt.Errorf("create tv_alerts: %w", execErr)
	}
	return nil
}

// Put inserts rec under key; a key that already exists is left untouched.
func (s *PostgresMirror) Put(ctx context.Context, key RecordKey, rec StoredRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(rec.Raw)
	if err != nil {
		return fmt.Errorf("marshal raw: %w", err)
	}
	parsed, err := json.Marshal(rec.Parsed)
	if err != nil {
		return fmt.Errorf("marshal parsed: %w", err)
	}

	var ticker interface{}
	if t, ok := rec.Raw.Payload()["ticker"].Str(); ok {
		ticker = t
	}

	_, execErr := pool.Exec(ctx, insertAlertSQL,
		key.Name,
		key.At,
		rec.Raw.Source(),
		ticker,
		raw,
		parsed,
	)
	if execErr != nil {
		return fmt.Errorf("insert tv alert: %w", execErr)
	}
	return nil
}

// CountRecords counts mirrored records.
func (s *PostgresMirror) CountRecords(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count tv alerts: %w", scanErr)
	}
	return count, nil
}

var _ RecordSink = (*PostgresMirror)(nil)
