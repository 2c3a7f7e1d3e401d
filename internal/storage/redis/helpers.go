package redis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goodtune/ttw/internal/storage"
)

// parseEntry converts a list entry to a Session
func parseEntry(key string, index int64, line string) (storage.Session, error) {
	session, err := storage.ParseLine(line)
	if err != nil {
		return storage.Session{}, &storage.ParseError{
			Source:   key,
			Position: fmt.Sprintf("index %d", index),
			Err:      err,
		}
	}
	return session, nil
}

// scriptError maps Lua error replies onto storage error categories
func scriptError(key string, err error) error {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "NOTFOUND"):
		return fmt.Errorf("patch %s: %w", key, storage.ErrNotFound)
	case strings.HasPrefix(msg, "CORRUPT"):
		return storage.CorruptError(key, errors.New(strings.TrimPrefix(msg, "CORRUPT ")))
	default:
		return storage.IOError("patch", key, err)
	}
}
