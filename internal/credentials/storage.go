// Package credentials persists the session's credential bundle (access token,
// refresh token and user snapshot) across process runs.
//
// It has two layers. A Storage is a plain string key/value capability with
// several backends, including a no-op one for hosts without durable storage.
// Store sits on top and is scoped to the three bundle keys.
package credentials

import (
	"maps"
	"sync"
)

// Storage is a durable string key/value capability.
// Get returns ok=false for an absent key.
type Storage interface {
	Put(key, value string) error
	Get(key string) (value string, ok bool, err error)
	Remove(key string) error
}

// Batcher is implemented by storages that can write or remove several keys atomically.
type Batcher interface {
	PutAll(values map[string]string) error
	RemoveAll(keys ...string) error
}

// NoopStorage is used when the host has no durable storage. Writes are
// dropped and every read is absent.
type NoopStorage struct{}

var (
	_ Storage = NoopStorage{}
	_ Batcher = NoopStorage{}
)

func (NoopStorage) Put(string, string) error         { return nil }
func (NoopStorage) Get(string) (string, bool, error) { return "", false, nil }
func (NoopStorage) Remove(string) error              { return nil }
func (NoopStorage) PutAll(map[string]string) error   { return nil }
func (NoopStorage) RemoveAll(...string) error        { return nil }

// MemoryStorage keeps values in memory. Data is lost when the process exits.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Batcher = (*MemoryStorage)(nil)
)

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStorage) PutAll(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.values, values)
	return nil
}

func (m *MemoryStorage) RemoveAll(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
