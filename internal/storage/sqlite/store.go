// Package sqlite keeps the session log in a SQLite database.
//
// WAL mode lets `ttw usage` read while the tracker writes.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goodtune/ttw/internal/storage"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	class      TEXT    NOT NULL,
	title      TEXT    NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	ended_at   INTEGER
)`

// Store provides access to the SQLite session database. A read-only store
// whose file does not exist yet has no connection and reads as empty.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the database, creating the schema unless readOnly is set.
func Open(path string, readOnly bool) (*Store, error) {
	if readOnly {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return &Store{path: path}, nil
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)", path)
	if readOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path)
	} else if dir := filepath.Dir(path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, storage.IOError("create directory", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.IOError("open database", path, err)
	}
	// A single connection keeps appends and patches strictly ordered.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storage.IOError("ping database", path, err)
	}

	if !readOnly {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, storage.IOError("create schema", path, err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Sessions returns the session store.
func (s *Store) Sessions() storage.SessionStore { return &sessionStore{db: s.db, path: s.path} }
