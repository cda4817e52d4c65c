// Package storetest provides in-memory test doubles for the storage layer.
package storetest

import (
	"context"
	"sort"
	"sync"
)

// MemoryKV is an in-memory implementation of the key-blob host used to
// exercise the kvblob adapter without a real database. It mirrors the host
// contract exactly: raw byte blobs, nil for absent keys, idempotent deletes,
// sorted key pages.
//
// FailWith switches every subsequent operation to return the given error,
// which is how tests exercise failure paths such as swallowed dual-writes.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
	err  error
}

// NewMemoryKV returns an empty in-memory key-blob host.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string][]byte)}
}

// FailWith makes all subsequent operations return err. Pass nil to recover.
func (m *MemoryKV) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryKV) Get(ctx context.Context, collection, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	blob, ok := m.data[collection][key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (m *MemoryKV) Put(ctx context.Context, collection, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string][]byte)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[collection][key] = stored
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data[collection], key)
	return nil
}

func (m *MemoryKV) Keys(ctx context.Context, collection string, limit, offset int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	all := make([]string, 0, len(m.data[collection]))
	for k := range m.data[collection] {
		all = append(all, k)
	}
	sort.Strings(all)
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryKV) Close() error { return nil }
