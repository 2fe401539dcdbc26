package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key     TEXT PRIMARY KEY,
	value   BYTEA NOT NULL,
	version BIGINT NOT NULL
)`

// ConnectDB initializes the connection pool and makes sure the schema exists.
func ConnectDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	// Serverless Postgres creates connections fast, don't hold idle ones.
	config.MaxConns = 10
	config.MinConns = 0
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to create schema: %w", err)
	}

	slog.Info("Connected to Postgres")
	return pool, nil
}

// PostgresKV stores every key as one row of kv_entries.
type PostgresKV struct {
	db *pgxpool.Pool
}

func NewPostgresKV(db *pgxpool.Pool) *PostgresKV {
	return &PostgresKV{db: db}
}

func (p *PostgresKV) Get(ctx context.Context, key string) (Entry, error) {
	e := Entry{Key: key}
	err := p.db.QueryRow(ctx, `SELECT value, version FROM kv_entries WHERE key = $1`, key).Scan(&e.Value, &e.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, domain.ErrNotFound
	}
	if err != nil {
		return Entry{}, storageErr("postgres get", err)
	}
	return e, nil
}

func (p *PostgresKV) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	var version int64
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		v, err := applyMutation(ctx, tx, Mutation{Key: key, Value: value, ExpectedVersion: expectedVersion})
		version = v
		return err
	})
	return version, err
}

func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return storageErr("postgres delete", err)
	}
	return nil
}

func (p *PostgresKV) ListByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := p.db.Query(ctx,
		`SELECT key, value, version FROM kv_entries WHERE starts_with(key, $1) ORDER BY key ASC`, prefix)
	if err != nil {
		return nil, storageErr("postgres list", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Version); err != nil {
			return nil, storageErr("postgres scan", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("postgres list", err)
	}
	return out, nil
}

// Commit applies all mutations in one SQL transaction. Any failed version
// check rolls the whole transaction back. Rows are touched in key order so
// two commits over the same keys never deadlock.
func (p *PostgresKV) Commit(ctx context.Context, muts ...Mutation) error {
	ordered := slices.Clone(muts)
	slices.SortFunc(ordered, func(a, b Mutation) int { return strings.Compare(a.Key, b.Key) })

	return p.inTx(ctx, func(tx pgx.Tx) error {
		for _, mut := range ordered {
			if _, err := applyMutation(ctx, tx, mut); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *PostgresKV) Close() error {
	p.db.Close()
	return nil
}

func (p *PostgresKV) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return storageErr("postgres begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("postgres commit", err)
	}
	return nil
}

func applyMutation(ctx context.Context, tx pgx.Tx, mut Mutation) (int64, error) {
	var (
		query string
		args  []any
	)

	switch {
	case mut.Delete && mut.ExpectedVersion == AnyVersion:
		query, args = `DELETE FROM kv_entries WHERE key = $1 RETURNING 0`, []any{mut.Key}
	case mut.Delete:
		query, args = `DELETE FROM kv_entries WHERE key = $1 AND version = $2 RETURNING 0`, []any{mut.Key, mut.ExpectedVersion}
	case mut.ExpectedVersion == AnyVersion:
		query = `
			INSERT INTO kv_entries (key, value, version) VALUES ($1, $2, 1)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, version = kv_entries.version + 1
			RETURNING version`
		args = []any{mut.Key, mut.Value}
	case mut.ExpectedVersion == 0:
		query = `INSERT INTO kv_entries (key, value, version) VALUES ($1, $2, 1) ON CONFLICT (key) DO NOTHING RETURNING version`
		args = []any{mut.Key, mut.Value}
	default:
		query = `UPDATE kv_entries SET value = $2, version = version + 1 WHERE key = $1 AND version = $3 RETURNING version`
		args = []any{mut.Key, mut.Value, mut.ExpectedVersion}
	}

	var version int64
	err := tx.QueryRow(ctx, query, args...).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unconditional deletes of missing keys are fine.
		if mut.Delete && mut.ExpectedVersion == AnyVersion {
			return 0, nil
		}
		return 0, domain.ErrConflict
	}
	if err != nil {
		return 0, storageErr("postgres write", err)
	}
	return version, nil
}
