package mocks

import (
	"sync"

	"github.com/user/telecast/pkg/ports"
)

// KeyValueStore is an in-memory ports.KeyValueStore.
type KeyValueStore struct {
	mu     sync.Mutex
	values map[string]string

	GetFunc func(key string) (string, bool)
	PutFunc func(key, value string) error

	// Recorded calls for verification
	PutCalls int
}

// NewKeyValueStore creates an empty store.
func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{values: make(map[string]string)}
}

func (m *KeyValueStore) Get(key string) (string, bool) {
	if m.GetFunc != nil {
		return m.GetFunc(key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *KeyValueStore) Put(key, value string) error {
	m.mu.Lock()
	m.PutCalls++
	m.mu.Unlock()
	if m.PutFunc != nil {
		return m.PutFunc(key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

var _ ports.KeyValueStore = (*KeyValueStore)(nil)
