package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

const fileVersion = 1

// fileDocument is the on-disk layout of a File store.
type fileDocument struct {
	Version    int                          `yaml:"version"`
	Namespaces map[string]map[string]string `yaml:"namespaces,omitempty"`
}

// File is a CredentialStore persisted as a YAML document.
//
// Every mutation rewrites the whole document to a temporary file and renames
// it over the original, so a crash leaves either the old or the new contents.
// The in-memory copy is only updated after the rename succeeds.
type File struct {
	path string

	mu   sync.Mutex
	data map[string]map[string]string
}

// OpenFile loads the store at path. A missing file yields an empty store;
// the file is created on the first write.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("file store requires a path")
	}

	f := &File{path: path, data: make(map[string]map[string]string)}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	if doc.Version != 0 && doc.Version != fileVersion {
		return nil, fmt.Errorf("unsupported store version: %d (expected %d)", doc.Version, fileVersion)
	}
	if doc.Namespaces != nil {
		f.data = doc.Namespaces
	}

	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// mutate applies fn to a copy of the contents and persists it.
func (f *File) mutate(fn func(data map[string]map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := copyNamespaces(f.data)
	fn(next)

	if err := f.write(next); err != nil {
		return err
	}
	f.data = next
	return nil
}

func (f *File) write(data map[string]map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	out, err := yaml.Marshal(&fileDocument{Version: fileVersion, Namespaces: data})
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0600); err != nil {
		return fmt.Errorf("failed to write temporary store file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save store file: %w", err)
	}

	return nil
}

func lookup(data map[string]map[string]string, namespace, key, def string) (string, bool) {
	if v, ok := data[namespace][key]; ok {
		return v, true
	}
	return def, false
}

func assign(data map[string]map[string]string, namespace, key, value string) {
	if data[namespace] == nil {
		data[namespace] = make(map[string]string)
	}
	data[namespace][key] = value
}

// GetPair implements CredentialStore.
func (f *File) GetPair(namespace, key1, key2, def1, def2 string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v1, _ := lookup(f.data, namespace, key1, def1)
	v2, _ := lookup(f.data, namespace, key2, def2)
	return v1, v2, nil
}

// SetPair implements CredentialStore.
func (f *File) SetPair(namespace, key1, v1, key2, v2 string) error {
	return f.mutate(func(data map[string]map[string]string) {
		assign(data, namespace, key1, v1)
		assign(data, namespace, key2, v2)
	})
}

// GetInt implements CredentialStore.
func (f *File) GetInt(namespace, key string, def int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := lookup(f.data, namespace, key, "")
	if !ok {
		return def, nil
	}
	return parseInt(namespace, key, raw)
}

// SetInt implements CredentialStore.
func (f *File) SetInt(namespace, key string, value int) error {
	return f.mutate(func(data map[string]map[string]string) {
		assign(data, namespace, key, strconv.Itoa(value))
	})
}

// Clear implements CredentialStore.
func (f *File) Clear(namespaces ...string) error {
	return f.mutate(func(data map[string]map[string]string) {
		for _, ns := range namespaces {
			delete(data, ns)
		}
	})
}

// Dump implements Dumper.
func (f *File) Dump() (map[string]map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyNamespaces(f.data), nil
}

// Close implements CredentialStore. File holds no open handles.
func (f *File) Close() error {
	return nil
}
