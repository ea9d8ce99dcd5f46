package storage

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrStore wraps failures of the durable store.
	ErrStore = errors.New("storage failure")
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// Well-known keys.
const (
	KeyMinCents   = "thresholds:min_cents"
	KeyMaxCents   = "thresholds:max_cents"
	KeyAlertState = "alert:state"
)

// KV is the durable key-value store every backend implements.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetMany writes all entries atomically.
	SetMany(ctx context.Context, entries map[string]string) error
	Close() error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Memory is an in-process KV for development and tests. Nothing survives a restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory) SetMany(_ context.Context, entries map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

func (m *Memory) Close() error { return nil }

var _ KV = (*Memory)(nil)
