package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps entries in process memory.
// Entries are copied on the way in and out, so callers never share state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Entry
	closed     bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: map[string]map[string]Entry{}}
}

func (m *MemoryStore) Open(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.namespaces[namespace]; !ok {
		m.namespaces[namespace] = map[string]Entry{}
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, namespace, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Entry{}, ErrClosed
	}
	e, ok := m.namespaces[namespace][key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, namespace string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = map[string]Entry{}
		m.namespaces[namespace] = ns
	}
	ns[entry.URL] = entry.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.namespaces[namespace], key)
	return nil
}

func (m *MemoryStore) Namespaces(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]string, 0, len(m.namespaces))
	for ns := range m.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Keys(_ context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	ns := m.namespaces[namespace]
	out := make([]string, 0, len(ns))
	for k := range ns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) DeleteNamespace(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.namespaces, namespace)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.namespaces = nil
	return nil
}
