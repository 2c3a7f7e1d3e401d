// Package instance ensures only one tracker writes the session log.
package instance

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/goodtune/ttw/internal/storage"
)

// ErrAlreadyRunning is returned when another process holds the guard.
var ErrAlreadyRunning = errors.New("another tracker is already running")

// Guard is held for the lifetime of the tracker.
type Guard interface {
	Acquire() error
	Release() error
}

// FileGuard is a Guard backed by an advisory lock on a file.
type FileGuard struct {
	lock *flock.Flock
}

// NewFileGuard creates a guard for the lock file at path.
func NewFileGuard(path string) *FileGuard {
	return &FileGuard{lock: flock.New(path)}
}

// Acquire takes the lock without blocking.
func (g *FileGuard) Acquire() error {
	if err := storage.EnsureDir(filepath.Dir(g.lock.Path())); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	locked, err := g.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", g.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w (lock held on %s)", ErrAlreadyRunning, g.lock.Path())
	}
	return nil
}

// Release drops the lock. The lock file is left in place.
func (g *FileGuard) Release() error {
	return g.lock.Unlock()
}
