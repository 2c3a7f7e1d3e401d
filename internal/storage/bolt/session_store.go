package bolt

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/goodtune/ttw/internal/storage"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	store *Store
}

func (s *sessionStore) path() string { return s.store.path }

func (s *sessionStore) Append(ctx context.Context, session storage.Session) error {
	session.Class = storage.CleanField(session.Class)
	session.Title = storage.CleanField(session.Title)
	data, err := marshal(session)
	if err != nil {
		return err
	}
	err = s.store.update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucketSessions)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
	if err != nil && ctx.Err() == nil && !errors.Is(err, storage.ErrIO) {
		return storage.IOError("append", s.path(), err)
	}
	return err
}

func (s *sessionStore) PatchLastEnd(ctx context.Context, end int64) error {
	return s.store.update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return storage.IOError("patch", s.path(), fmt.Errorf("bucket missing: %s", bucketSessions))
		}
		key, value := b.Cursor().Last()
		if key == nil {
			return fmt.Errorf("patch %s: %w", s.path(), storage.ErrNotFound)
		}
		var session storage.Session
		if err := unmarshal(value, &session); err != nil {
			return storage.CorruptError(s.path(), fmt.Errorf("%s: %w", keyString(key), err))
		}
		session.End = end
		session.Open = false
		data, err := marshal(session)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return storage.IOError("patch", s.path(), err)
		}
		return nil
	})
}

func (s *sessionStore) ReadAll(ctx context.Context) iter.Seq2[storage.Session, error] {
	return func(yield func(storage.Session, error) bool) {
		stopped := false
		err := s.store.view(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte(bucketSessions))
			if b == nil {
				return nil
			}
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				session, err := s.decode(k, v)
				if err != nil {
					return err
				}
				if !yield(session, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(storage.Session{}, err)
		}
	}
}

func (s *sessionStore) ReadTail(ctx context.Context, n int) iter.Seq2[storage.Session, error] {
	return func(yield func(storage.Session, error) bool) {
		if n <= 0 {
			return
		}
		sessions := make([]storage.Session, 0, n)
		err := s.store.view(func(tx *bbolt.Tx) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b := tx.Bucket([]byte(bucketSessions))
			if b == nil {
				return nil
			}
			c := b.Cursor()
			for k, v := c.Last(); k != nil && len(sessions) < n; k, v = c.Prev() {
				session, err := s.decode(k, v)
				if err != nil {
					return err
				}
				sessions = append(sessions, session)
			}
			return nil
		})
		if err != nil {
			yield(storage.Session{}, err)
			return
		}
		for i := len(sessions) - 1; i >= 0; i-- {
			if !yield(sessions[i], nil) {
				return
			}
		}
	}
}

func (s *sessionStore) decode(key, value []byte) (storage.Session, error) {
	var session storage.Session
	if err := unmarshal(value, &session); err != nil {
		return storage.Session{}, &storage.ParseError{Source: s.path(), Position: keyString(key), Err: err}
	}
	return session, nil
}
