package storage

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lazyPool never dials until a connection is acquired.
func lazyPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), "postgres://pricewatch@127.0.0.1:1/pricewatch?connect_timeout=1")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestPostgresErrorsWrapErrStore(t *testing.T) {
	store := NewPostgres(lazyPool(t))
	ctx := cancelledContext()

	unlock, acquired, err := store.TryAdvisoryLock(ctx, 42)
	assert.ErrorIs(t, err, ErrStore, "获取连接失败应包装为 ErrStore")
	assert.False(t, acquired)
	assert.Nil(t, unlock)

	_, _, err = store.Get(ctx, KeyAlertState)
	assert.ErrorIs(t, err, ErrStore)

	err = store.SetMany(ctx, map[string]string{KeyAlertState: "{}"})
	assert.ErrorIs(t, err, ErrStore)
}

func TestNilPostgresAdvisoryLock(t *testing.T) {
	var pg *Postgres
	_, acquired, err := pg.TryAdvisoryLock(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, acquired)
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("PRICEWATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PRICEWATCH_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewPostgres(pool)
	require.NoError(t, store.EnsureSchema(ctx))

	require.NoError(t, store.SetMany(ctx, map[string]string{KeyMinCents: "5.5"}))
	value, ok, err := store.Get(ctx, KeyMinCents)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5.5", value)

	unlock, acquired, err := store.TryAdvisoryLock(ctx, 7331)
	require.NoError(t, err)
	require.True(t, acquired)

	_, again, err := store.TryAdvisoryLock(ctx, 7331)
	require.NoError(t, err)
	assert.False(t, again, "同一把锁在另一会话中不可重复获取")
	unlock()
}
