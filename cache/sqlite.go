package cache

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore stores entries in a SQLite database.
// Writes are serialized, reads run concurrently.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore opens a store with the given filename as the db.
// If file name is empty, a private in-memory db is opened.
func NewSQLiteStore(filename string) (*SQLiteStore, error) {
	inMemory := filename == ""
	if inMemory {
		filename = ":memory:"
	} else {
		sep := "?"
		if strings.Contains(filename, "?") {
			sep = "&"
		}
		filename += sep + "_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	if inMemory {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS namespaces (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			bytes BLOB,
			PRIMARY KEY (namespace, key)
		)`,
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteStore) Open(ctx context.Context, namespace string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO namespaces (name) VALUES (?)", namespace)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) (Entry, error) {
	var bytes []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT bytes FROM entries WHERE namespace = ? AND key = ?", namespace, key,
	).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return decodeEntry(bytes)
}

func (s *SQLiteStore) Put(ctx context.Context, namespace string, entry Entry) error {
	bytes, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO namespaces (name) VALUES (?)", namespace); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO entries (namespace, key, bytes) VALUES (?, ?, ?)",
		namespace, entry.URL, bytes,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE namespace = ? AND key = ?", namespace, key)
	return err
}

func (s *SQLiteStore) Namespaces(ctx context.Context) ([]string, error) {
	return s.strings(ctx, "SELECT name FROM namespaces ORDER BY name")
}

func (s *SQLiteStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	return s.strings(ctx, "SELECT key FROM entries WHERE namespace = ? ORDER BY key", namespace)
}

func (s *SQLiteStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE namespace = ?", namespace); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM namespaces WHERE name = ?", namespace); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var str string
		if err := rows.Scan(&str); err != nil {
			return nil, err
		}
		out = append(out, str)
	}
	return out, rows.Err()
}
