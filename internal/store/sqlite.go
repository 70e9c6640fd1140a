package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    PRIMARY KEY (namespace, key)
);
`

// SQLite is a CredentialStore backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) lookup(namespace, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM entries WHERE namespace = ? AND key = ?`, namespace, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query %s/%s: %w", namespace, key, err)
	}
	return v, true, nil
}

// GetPair implements CredentialStore. Both keys are read by one statement so
// a concurrent SetPair is seen whole or not at all.
func (s *SQLite) GetPair(namespace, key1, key2, def1, def2 string) (string, string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM entries WHERE namespace = ? AND key IN (?, ?)`,
		namespace, key1, key2)
	if err != nil {
		return def1, def2, fmt.Errorf("query %s: %w", namespace, err)
	}
	defer rows.Close()

	v1, v2 := def1, def2
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return def1, def2, fmt.Errorf("scan %s: %w", namespace, err)
		}
		if k == key1 {
			v1 = v
		}
		if k == key2 {
			v2 = v
		}
	}
	if err := rows.Err(); err != nil {
		return def1, def2, fmt.Errorf("query %s: %w", namespace, err)
	}
	return v1, v2, nil
}

// upsert writes all key/value pairs of namespace in one transaction.
func (s *SQLite) upsert(namespace string, kv ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO entries (namespace, key, value) VALUES (?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i+1 < len(kv); i += 2 {
		if _, err := stmt.Exec(namespace, kv[i], kv[i+1]); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", namespace, kv[i], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetPair implements CredentialStore.
func (s *SQLite) SetPair(namespace, key1, v1, key2, v2 string) error {
	return s.upsert(namespace, key1, v1, key2, v2)
}

// GetInt implements CredentialStore.
func (s *SQLite) GetInt(namespace, key string, def int) (int, error) {
	raw, ok, err := s.lookup(namespace, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return parseInt(namespace, key, raw)
}

// SetInt implements CredentialStore.
func (s *SQLite) SetInt(namespace, key string, value int) error {
	return s.upsert(namespace, key, strconv.Itoa(value))
}

// Clear implements CredentialStore.
func (s *SQLite) Clear(namespaces ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ns := range namespaces {
		if _, err := tx.Exec(`DELETE FROM entries WHERE namespace = ?`, ns); err != nil {
			return fmt.Errorf("clear %s: %w", ns, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Dump implements Dumper.
func (s *SQLite) Dump() (map[string]map[string]string, error) {
	rows, err := s.db.Query(`SELECT namespace, key, value FROM entries ORDER BY namespace, key`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]string)
	for rows.Next() {
		var ns, k, v string
		if err := rows.Scan(&ns, &k, &v); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		assign(out, ns, k, v)
	}
	return out, rows.Err()
}

// Close implements CredentialStore.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
