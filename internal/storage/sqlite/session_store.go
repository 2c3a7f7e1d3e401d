package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/goodtune/ttw/internal/storage"
)

type sessionStore struct {
	db   *sql.DB
	path string
}

var errNoDatabase = errors.New("database does not exist")

func (s *sessionStore) Append(ctx context.Context, session storage.Session) error {
	if s.db == nil {
		return storage.IOError("append", s.path, errNoDatabase)
	}
	var end sql.NullInt64
	if !session.Open {
		end = sql.NullInt64{Int64: session.End, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (class, title, started_at, ended_at)
		VALUES (?, ?, ?, ?)
	`, storage.CleanField(session.Class), storage.CleanField(session.Title), session.Start, end)
	if err != nil {
		return storage.IOError("append", s.path, err)
	}
	return nil
}

func (s *sessionStore) PatchLastEnd(ctx context.Context, end int64) error {
	if s.db == nil {
		return storage.IOError("patch", s.path, errNoDatabase)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?
		WHERE id = (SELECT MAX(id) FROM sessions)
	`, end)
	if err != nil {
		return storage.IOError("patch", s.path, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storage.IOError("patch", s.path, err)
	}
	if rows == 0 {
		return fmt.Errorf("patch %s: %w", s.path, storage.ErrNotFound)
	}
	return nil
}

func (s *sessionStore) ReadAll(ctx context.Context) iter.Seq2[storage.Session, error] {
	return s.query(ctx, `
		SELECT id, class, title, started_at, ended_at
		FROM sessions
		ORDER BY id ASC
	`)
}

func (s *sessionStore) ReadTail(ctx context.Context, n int) iter.Seq2[storage.Session, error] {
	if n <= 0 {
		return func(func(storage.Session, error) bool) {}
	}
	return s.query(ctx, `
		SELECT id, class, title, started_at, ended_at FROM (
			SELECT id, class, title, started_at, ended_at
			FROM sessions
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, n)
}

func (s *sessionStore) query(ctx context.Context, query string, args ...any) iter.Seq2[storage.Session, error] {
	return func(yield func(storage.Session, error) bool) {
		if s.db == nil {
			return
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(storage.Session{}, storage.IOError("query sessions", s.path, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id      int64
				session storage.Session
				end     sql.NullInt64
			)
			if err := rows.Scan(&id, &session.Class, &session.Title, &session.Start, &end); err != nil {
				yield(storage.Session{}, &storage.ParseError{Source: s.path, Position: fmt.Sprintf("row %d", id), Err: err})
				return
			}
			session.Open = !end.Valid
			session.End = end.Int64
			if !yield(session, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(storage.Session{}, storage.IOError("scan sessions", s.path, err))
		}
	}
}
