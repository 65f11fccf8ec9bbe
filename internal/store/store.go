// Package store provides the string key-value persistence that backs the
// response cache and the rate-limit gate.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
)

// KV is a durable string key-value store. Read reports ok=false for a key
// that was never written.
type KV interface {
	Read(ctx context.Context, key string) (value string, ok bool, err error)
	Write(ctx context.Context, key, value string) error
	Close() error
}

// Open returns the backend named by driver: "memory", "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string, clock clockwork.Clock, logger *slog.Logger) (KV, error) {
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQL(ctx, "sqlite", dsn, clock, logger)
	case "postgres":
		return OpenSQL(ctx, "pgx", dsn, clock, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// Memory is a process-local KV. Contents do not survive a restart.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Read(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Write(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Close() error { return nil }
