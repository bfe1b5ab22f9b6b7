// Package postgres stores call records, transcripts and agent profiles in
// PostgreSQL.
//
// [CallStore] implements [persistence.CallStore] over the calls and
// transcripts tables. [AgentStore] implements [callconfig.ConfigPort] over
// the agent_configs table, with profiles stored as JSONB. The schema is
// managed with goose migrations embedded in the binary; run [Migrate] once
// at startup.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrWong99/voxcall/internal/persistence"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB is the database interface used by the stores. *pgxpool.Pool satisfies
// it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys, goose.WithSlog(slog.Default()))
	if err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	for _, r := range results {
		slog.Info("postgres: migration applied", "source", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

// CallStore is a [persistence.CallStore] backed by PostgreSQL.
type CallStore struct {
	db DB
}

var _ persistence.CallStore = (*CallStore)(nil)

// NewCallStore returns a store using db. Run [Migrate] first.
func NewCallStore(db DB) *CallStore {
	return &CallStore{db: db}
}

// CreateCall implements [persistence.CallStore].
func (s *CallStore) CreateCall(ctx context.Context, streamID, clientType string) (string, error) {
	const query = `
		INSERT INTO calls (session_id, client_type, status)
		VALUES ($1, $2, 'active')
		RETURNING id::text`

	var id string
	if err := s.db.QueryRow(ctx, query, streamID, clientType).Scan(&id); err != nil {
		return "", fmt.Errorf("postgres: create call: %w", err)
	}
	return id, nil
}

// SaveTranscripts implements [persistence.CallStore]. All items are written
// in one batch inside a transaction.
func (s *CallStore) SaveTranscripts(ctx context.Context, callID string, items []persistence.Item) (err error) {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: save transcripts: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const query = `INSERT INTO transcripts (call_id, role, content) VALUES ($1, $2, $3)`
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(query, callID, it.Role, it.Content)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range items {
		if _, err = br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: save transcripts: item %d: %w", i, err)
		}
	}
	if err = br.Close(); err != nil {
		return fmt.Errorf("postgres: save transcripts: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: save transcripts: commit: %w", err)
	}
	return nil
}

// UpdateCallExtraction implements [persistence.CallStore].
func (s *CallStore) UpdateCallExtraction(ctx context.Context, callID string, data map[string]any) error {
	raw, err := json.Marshal(emptyMap(data))
	if err != nil {
		return fmt.Errorf("postgres: marshal extraction: %w", err)
	}
	tag, err := s.db.Exec(ctx, `UPDATE calls SET extracted_data = $2 WHERE id = $1`, callID, raw)
	if err != nil {
		return fmt.Errorf("postgres: update extraction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update extraction: call %q not found", callID)
	}
	return nil
}

// EndCall implements [persistence.CallStore].
func (s *CallStore) EndCall(ctx context.Context, callID string) error {
	tag, err := s.db.Exec(ctx, `UPDATE calls SET end_time = now(), status = 'completed' WHERE id = $1`, callID)
	if err != nil {
		return fmt.Errorf("postgres: end call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: end call: call %q not found", callID)
	}
	return nil
}

// Transcript returns the stored transcript of callID in insertion order.
func (s *CallStore) Transcript(ctx context.Context, callID string) ([]persistence.Item, error) {
	rows, err := s.db.Query(ctx, `SELECT role, content FROM transcripts WHERE call_id = $1 ORDER BY id`, callID)
	if err != nil {
		return nil, fmt.Errorf("postgres: transcript: %w", err)
	}
	defer rows.Close()

	var items []persistence.Item
	for rows.Next() {
		var it persistence.Item
		if err := rows.Scan(&it.Role, &it.Content); err != nil {
			return nil, fmt.Errorf("postgres: transcript: scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: transcript: %w", err)
	}
	return items, nil
}

// Ping checks database connectivity. It satisfies the health.Checker
// signature.
func Ping(db interface{ Ping(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return errors.Join(errors.New("postgres: ping failed"), err)
		}
		return nil
	}
}

func emptyMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
