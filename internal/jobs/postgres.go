package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS ytharvest_jobs (
	id         TEXT PRIMARY KEY,
	spec       JSONB NOT NULL,
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresBackend stores entries in PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates a pgx pool for dsn and ensures the schema exists.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	config.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (b *PostgresBackend) Load(ctx context.Context) ([]Entry, error) {
	rows, err := b.pool.Query(ctx, `SELECT spec, state FROM ytharvest_jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var spec, state []byte
		if err := rows.Scan(&spec, &state); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		e, err := decodeEntry(spec, state)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (b *PostgresBackend) Put(ctx context.Context, entry Entry) error {
	spec, state, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `INSERT INTO ytharvest_jobs (id, spec, state, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET spec = EXCLUDED.spec, state = EXCLUDED.state, updated_at = now()`,
		entry.Spec.ID, string(spec), string(state), entry.Spec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: put %s: %w", entry.Spec.ID, err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, id string) error {
	if _, err := b.pool.Exec(ctx, `DELETE FROM ytharvest_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", id, err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
