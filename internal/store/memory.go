package store

import (
	"strconv"
	"sync"
)

// Memory is a volatile CredentialStore.
//
// FailWrites and FailClear inject persistence errors for tests; when set,
// the corresponding operation returns the error and leaves contents intact.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string]string

	FailWrites error
	FailClear  error
}

// NewMemory returns an empty memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]string)}
}

func (m *Memory) get(namespace, key string) (string, bool) {
	ns, ok := m.data[namespace]
	if !ok {
		return "", false
	}
	v, ok := ns[key]
	return v, ok
}

func (m *Memory) set(namespace, key, value string) {
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]string)
		m.data[namespace] = ns
	}
	ns[key] = value
}

// GetPair implements CredentialStore.
func (m *Memory) GetPair(namespace, key1, key2, def1, def2 string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v1, ok := m.get(namespace, key1)
	if !ok {
		v1 = def1
	}
	v2, ok := m.get(namespace, key2)
	if !ok {
		v2 = def2
	}
	return v1, v2, nil
}

// SetPair implements CredentialStore.
func (m *Memory) SetPair(namespace, key1, v1, key2, v2 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.set(namespace, key1, v1)
	m.set(namespace, key2, v2)
	return nil
}

// GetInt implements CredentialStore.
func (m *Memory) GetInt(namespace, key string, def int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.get(namespace, key)
	if !ok {
		return def, nil
	}
	return parseInt(namespace, key, raw)
}

// SetInt implements CredentialStore.
func (m *Memory) SetInt(namespace, key string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.set(namespace, key, strconv.Itoa(value))
	return nil
}

// Clear implements CredentialStore.
func (m *Memory) Clear(namespaces ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailClear != nil {
		return m.FailClear
	}
	for _, ns := range namespaces {
		delete(m.data, ns)
	}
	return nil
}

// Has reports whether namespace holds any keys.
func (m *Memory) Has(namespace string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[namespace]) > 0
}

// Dump implements Dumper.
func (m *Memory) Dump() (map[string]map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyNamespaces(m.data), nil
}

// Close implements CredentialStore.
func (m *Memory) Close() error {
	return nil
}

func copyNamespaces(src map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(src))
	for ns, kv := range src {
		c := make(map[string]string, len(kv))
		for k, v := range kv {
			c[k] = v
		}
		out[ns] = c
	}
	return out
}
