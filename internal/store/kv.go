package store

import (
	"fmt"
	"io"
	"sync"
)

// Backend is durable key/value storage for the frame caches.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	io.Closer
}

// MemoryBackend keeps values in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *MemoryBackend) Put(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

// Open selects a backend by driver name: "file", "sqlite" or "memory".
func Open(driver, path string) (Backend, error) {
	switch driver {
	case "", "file":
		return NewFileBackend(path), nil
	case "sqlite":
		return OpenSQLite(path)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
