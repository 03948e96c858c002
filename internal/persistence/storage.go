package persistence

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrKeyNotFound is returned by Storage.Get when nothing is stored under the key.
	ErrKeyNotFound = errors.New("storage key not found")
	// ErrQuotaExceeded is returned when a write would exceed a backend's quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Storage is a string key/value backend. Any error other than
// ErrKeyNotFound is treated as the backend being unavailable.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// MemoryStorage keeps values in process. A positive quota caps the total
// number of bytes stored across keys.
type MemoryStorage struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int
}

func NewMemoryStorage(quota int) *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string), quota: quota}
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (m *MemoryStorage) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota > 0 {
		used := len(value)
		for k, v := range m.data {
			if k != key {
				used += len(v)
			}
		}
		if used > m.quota {
			return ErrQuotaExceeded
		}
	}
	m.data[key] = value
	return nil
}

func (m *MemoryStorage) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
