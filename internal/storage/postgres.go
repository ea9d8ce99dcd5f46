package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createKVTableSQL = `CREATE TABLE IF NOT EXISTS kv_entries (
        key        TEXT PRIMARY KEY,
        value      TEXT NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	getEntrySQL = `SELECT value FROM kv_entries WHERE key = $1;`

	upsertEntrySQL = `INSERT INTO kv_entries (
        key,
        value,
        updated_at
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (key) DO UPDATE
    SET
        value      = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Postgres stores entries in a single kv_entries table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the kv_entries table when missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createKVTableSQL); err != nil {
		return fmt.Errorf("%w: create kv table: %v", ErrStore, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Postgres) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Get reads one entry.
func (s *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", false, err
	}

	var value string
	if scanErr := pool.QueryRow(ctx, getEntrySQL, key).Scan(&value); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: get %s: %v", ErrStore, key, scanErr)
	}
	return value, true, nil
}

// SetMany upserts all entries inside one transaction.
func (s *Postgres) SetMany(ctx context.Context, entries map[string]string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	txErr := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for key, value := range entries {
			if _, execErr := tx.Exec(ctx, upsertEntrySQL, key, value, now); execErr != nil {
				return fmt.Errorf("upsert %s: %w", key, execErr)
			}
		}
		return nil
	})
	if txErr != nil {
		return fmt.Errorf("%w: %v", ErrStore, txErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Postgres) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: acquire connection: %v", ErrStore, err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("%w: try advisory lock: %v", ErrStore, err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// unlock best effort; the session lock also ends with the connection
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ KV             = (*Postgres)(nil)
	_ AdvisoryLocker = (*Postgres)(nil)
)
