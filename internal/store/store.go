package store

import (
	"errors"
	"fmt"
	"strconv"
)

// Namespaces and keys persisted by the node.
const (
	NamespaceNetwork        = "network"
	NamespaceProvisioningAP = "provisioning-ap"
	NamespaceUpdateChannel  = "update-channel"
	NamespaceBoot           = "boot"

	KeySSID      = "ssid"
	KeyPassword  = "password"
	KeyHostName  = "hostName"
	KeyBootCount = "boot_count"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// CredentialStore is the persistence boundary required by the node core.
type CredentialStore interface {
	// GetPair returns the values of key1 and key2 in namespace, substituting
	// def1/def2 for missing keys.
	GetPair(namespace, key1, key2, def1, def2 string) (string, string, error)

	// SetPair writes both keys atomically.
	SetPair(namespace, key1, v1, key2, v2 string) error

	// GetInt returns the integer stored at key, or def if missing.
	GetInt(namespace, key string, def int) (int, error)

	// SetInt writes an integer value.
	SetInt(namespace, key string, value int) error

	// Clear removes every listed namespace atomically.
	Clear(namespaces ...string) error

	// Close releases resources held by the backend.
	Close() error
}

// Open creates a store for the named backend. path is ignored by the memory
// backend.
func Open(backend, path string) (CredentialStore, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendFile:
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Snapshot returns every namespace and key held by s. Backends that can
// enumerate their contents implement Dumper.
func Snapshot(s CredentialStore) (map[string]map[string]string, error) {
	d, ok := s.(Dumper)
	if !ok {
		return nil, fmt.Errorf("store %T cannot enumerate its contents", s)
	}
	return d.Dump()
}

// Dumper is implemented by backends that can list their contents.
type Dumper interface {
	Dump() (map[string]map[string]string, error)
}

func parseInt(namespace, key, raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("value of %s/%s is not an integer: %w", namespace, key, err)
	}
	return v, nil
}
