package redis

import (
	"context"
	"iter"
	"strconv"

	"github.com/goodtune/ttw/internal/storage"
	"github.com/redis/go-redis/v9"
)

// readPage is the number of list entries fetched per LRANGE while streaming.
const readPage = 512

// sessionStore keeps one TSV-encoded session per list entry, oldest first.
type sessionStore struct {
	client *redis.Client
	key    string
	patch  *redis.Script
}

// Append pushes a session onto the tail of the list
func (s *sessionStore) Append(ctx context.Context, session storage.Session) error {
	if err := s.client.RPush(ctx, s.key, storage.FormatLine(session)).Err(); err != nil {
		return storage.IOError("append", s.key, err)
	}
	return nil
}

// PatchLastEnd rewrites the end column of the newest session atomically
func (s *sessionStore) PatchLastEnd(ctx context.Context, end int64) error {
	err := s.patch.Run(ctx, s.client, []string{s.key}, strconv.FormatInt(end, 10)).Err()
	if err != nil {
		return scriptError(s.key, err)
	}
	return nil
}

// ReadAll streams the list page by page
func (s *sessionStore) ReadAll(ctx context.Context) iter.Seq2[storage.Session, error] {
	return func(yield func(storage.Session, error) bool) {
		for start := int64(0); ; start += readPage {
			lines, err := s.client.LRange(ctx, s.key, start, start+readPage-1).Result()
			if err != nil {
				yield(storage.Session{}, storage.IOError("read", s.key, err))
				return
			}
			for i, line := range lines {
				session, err := parseEntry(s.key, start+int64(i), line)
				if !yield(session, err) || err != nil {
					return
				}
			}
			if len(lines) < readPage {
				return
			}
		}
	}
}

// ReadTail streams the newest n sessions, oldest first
func (s *sessionStore) ReadTail(ctx context.Context, n int) iter.Seq2[storage.Session, error] {
	return func(yield func(storage.Session, error) bool) {
		if n <= 0 {
			return
		}
		lines, err := s.client.LRange(ctx, s.key, int64(-n), -1).Result()
		if err != nil {
			yield(storage.Session{}, storage.IOError("read tail", s.key, err))
			return
		}
		for i, line := range lines {
			session, err := parseEntry(s.key, int64(i-len(lines)), line)
			if !yield(session, err) || err != nil {
				return
			}
		}
	}
}
