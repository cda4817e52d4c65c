// Package objstore abstracts the binary object store backing project
// attachments. The storage layer only tracks object keys; putting and
// releasing the bytes happens here.
package objstore

import (
	"context"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = fmt.Errorf("object not found")

// Object is stored content with its media type.
type Object struct {
	Data        []byte
	ContentType string
}

// Store is a flat keyed blob store.
type Store interface {
	Put(ctx context.Context, key string, obj Object) error
	Get(ctx context.Context, key string) (Object, error)
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
}

// Memory is an in-process Store. The default when no external object store
// is wired, and the fixture for handler tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]Object
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

func (m *Memory) Put(ctx context.Context, key string, obj Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := Object{Data: make([]byte, len(obj.Data)), ContentType: obj.ContentType}
	copy(stored.Data, obj.Data)
	m.objects[key] = stored
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return obj, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
