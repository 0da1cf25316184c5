// Package store persists the small pieces of state TabFold keeps between runs,
// such as the next group color index.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tabfold-mcp-server/internal/config"
)

// Store is a string key/value store. Get reports ok=false for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store closed")

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", config.DriverFile:
		var f *File
		if f, err = OpenFile(cfg.Path); err == nil {
			s = f
		}
	case config.DriverMemory:
		s = NewMemory()
	case config.DriverSQLite:
		var q *SQL
		if q, err = OpenSQLite(ctx, cfg.Path, cfg.GetTable()); err == nil {
			s = q
		}
	case config.DriverPostgres:
		var q *SQL
		if q, err = OpenPostgres(ctx, cfg.DSN, cfg.GetTable()); err == nil {
			s = q
		}
	case config.DriverRedis:
		var r *Redis
		if r, err = OpenRedis(ctx, cfg); err == nil {
			s = r
		}
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return s, nil
}

// Memory keeps values in process. It is used by tests and by the memory
// browser provider.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Close() error { return nil }
