package storage

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// MockStore is an in-memory implementation of ObjectStore for testing.
type MockStore struct {
	mu      sync.Mutex
	objects map[string]*Object
	calls   MockCalls
	now     func() time.Time
}

// MockCalls tracks method invocations for test verification.
type MockCalls struct {
	Put    int
	Get    int
	Prune  int
}

// NewMockStore creates a new in-memory object store.
func NewMockStore() *MockStore {
	return &MockStore{
		objects: make(map[string]*Object),
		now:     time.Now,
	}
}

// SetClock overrides the time source used for access tracking.
func (m *MockStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Put stores an object and returns its key.
func (m *MockStore) Put(_ context.Context, obj *Object) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Put++

	hash := obj.Hash
	if hash == "" {
		hash = ContentHash(obj.Data)
	}
	if _, ok := m.objects[hash]; ok {
		return hash, nil
	}

	now := m.now()
	m.objects[hash] = &Object{
		Hash: hash,
		Type: obj.Type,
		Size: int64(len(obj.Data)),
		Data: append([]byte(nil), obj.Data...),
		Metadata: Metadata{
			CreatedAt:    now,
			LastAccessed: now,
			Custom:       maps.Clone(obj.Metadata.Custom),
		},
	}
	return hash, nil
}

// Get retrieves a copy of an object by key.
func (m *MockStore) Get(_ context.Context, hash string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Get++

	obj, ok := m.objects[hash]
	if !ok {
		return nil, ErrNotFound{Hash: hash}
	}
	obj.Metadata.LastAccessed = m.now()

	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	cp.Metadata.Custom = maps.Clone(obj.Metadata.Custom)
	return &cp, nil
}

// Prune removes objects last accessed before olderThan.
func (m *MockStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Prune++

	removed := 0
	for hash, obj := range m.objects {
		if obj.Metadata.LastAccessed.Before(olderThan) {
			delete(m.objects, hash)
			removed++
		}
	}
	return removed, nil
}

// Close releases resources (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}

// GetCalls returns the number of times each method was called.
func (m *MockStore) GetCalls() MockCalls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Size returns the number of stored objects.
func (m *MockStore) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// String returns a string representation for debugging.
func (m *MockStore) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("MockStore{objects: %d, calls: %+v}", len(m.objects), m.calls)
}

var (
	_ ObjectStore = (*MockStore)(nil)
	_ ObjectStore = (*FSStore)(nil)
)
