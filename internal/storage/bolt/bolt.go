package bolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goodtune/ttw/internal/storage"
	"go.etcd.io/bbolt"
)

const bucketSessions = "sessions"

// DefaultTimeout bounds how long an operation waits for the file lock.
const DefaultTimeout = 5 * time.Second

// Store implements the storage.Store interface using bbolt.
//
// The database is opened per operation, like the TSV store opens its file,
// so the exclusive writer lock is only held for the length of one
// transaction and readers can query while the tracker runs.
type Store struct {
	path string
	opts Options
}

// Options controls how the database file is opened.
type Options struct {
	// ReadOnly stores never create the file; reads of a missing database
	// yield nothing.
	ReadOnly bool
	// Timeout is how long an operation waits for another process to
	// release the file lock.
	Timeout time.Duration
}

// Open returns a BoltDB-backed store. Writable stores create the file and
// bucket up front so configuration mistakes surface at startup.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt store path is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	store := &Store{path: path, opts: opts}
	if opts.ReadOnly {
		return store, nil
	}

	if err := ensureDir(path); err != nil {
		return nil, err
	}
	if err := store.update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketSessions)); err != nil {
			return storage.IOError("create bucket", bucketSessions, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := storage.EnsureDir(dir); err != nil {
		return storage.IOError("create directory", dir, err)
	}
	return nil
}

// update runs fn in a write transaction on a freshly opened database.
func (s *Store) update(fn func(tx *bbolt.Tx) error) error {
	if s.opts.ReadOnly {
		return storage.IOError("write", s.path, errors.New("store is read-only"))
	}

	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{Timeout: s.opts.Timeout})
	if err != nil {
		return storage.IOError("open bolt db", s.path, err)
	}
	defer func() { _ = db.Close() }()

	return db.Update(fn)
}

// view runs fn in a read transaction under a shared lock. A missing
// database has nothing to read, so fn is not called.
func (s *Store) view(fn func(tx *bbolt.Tx) error) error {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{Timeout: s.opts.Timeout, ReadOnly: true})
	if err != nil {
		return storage.IOError("open bolt db", s.path, err)
	}
	defer func() { _ = db.Close() }()

	return db.View(fn)
}

// Close releases nothing; the database is opened per operation.
func (s *Store) Close() error {
	return nil
}

// Sessions returns the session store.
func (s *Store) Sessions() storage.SessionStore { return &sessionStore{store: s} }

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

// sequenceKey encodes a bucket sequence so that keys sort in append order.
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func keyString(key []byte) string {
	if len(key) != 8 {
		return fmt.Sprintf("key %x", key)
	}
	return fmt.Sprintf("key %d", binary.BigEndian.Uint64(key))
}
