package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")

	// ErrIO marks a failure to read or write the underlying medium.
	ErrIO = errors.New("storage: i/o failure")

	// ErrCorrupt marks stored data that does not have the expected shape.
	ErrCorrupt = errors.New("storage: corrupt store")
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Sessions() SessionStore
}

// SessionStore is the append-only session log.
//
// Only the end of the most recently appended session may be rewritten.
// Sequences returned by ReadAll and ReadTail are lazy and may be ranged over
// more than once; each range reads the store afresh.
type SessionStore interface {
	Append(ctx context.Context, session Session) error
	PatchLastEnd(ctx context.Context, end int64) error
	ReadAll(ctx context.Context) iter.Seq2[Session, error]
	ReadTail(ctx context.Context, n int) iter.Seq2[Session, error]
}

// ParseError reports a stored record that could not be decoded.
type ParseError struct {
	Source string
	// Position is a line number for line-oriented stores, otherwise a
	// backend specific position such as a key or byte offset.
	Position string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s at %s: %v", e.Source, e.Position, e.Err)
}

// Unwrap exposes both the corruption category and the decode error.
func (e *ParseError) Unwrap() []error {
	return []error{ErrCorrupt, e.Err}
}

// IOError wraps a backend failure so that errors.Is(err, ErrIO) holds.
func IOError(op, target string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, target, err)
}

// CorruptError wraps a shape violation so that errors.Is(err, ErrCorrupt) holds.
func CorruptError(target string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCorrupt, target, err)
}
