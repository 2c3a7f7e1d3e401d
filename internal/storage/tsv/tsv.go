// Package tsv stores the session log as a tab-separated text file.
//
// The end of the last record is patched in place: the store remembers the
// byte offset of the last line's end field and rewrites from there to the end
// of the file. Lines before the last one are never touched.
package tsv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goodtune/ttw/internal/storage"
)

// Store implements storage.Store over a single TSV file.
type Store struct {
	path string

	mu sync.Mutex
	// endOffset is the byte offset of the last record's end field, or -1
	// when it has to be located by reading the file tail.
	endOffset int64
}

// Open returns a store for the TSV file at path. The file itself is created
// on the first append.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("tsv store path is required")
	}
	return &Store{path: path, endOffset: -1}, nil
}

// Path returns the location of the session log.
func (s *Store) Path() string { return s.path }

// Close releases nothing; files are opened per operation.
func (s *Store) Close() error { return nil }

// Sessions returns the session store.
func (s *Store) Sessions() storage.SessionStore { return s }

// Append writes a new session line, creating the file and header when needed.
func (s *Store) Append(ctx context.Context, session storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return storage.IOError("create directory", dir, err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return storage.IOError("open", s.path, err)
	}
	defer f.Close()

	size, err := repairTail(f, s.path)
	if err != nil {
		s.endOffset = -1
		return err
	}

	var b strings.Builder
	if size == 0 {
		b.WriteString(storage.Header)
		b.WriteByte('\n')
	}
	lineStart := size + int64(b.Len())
	line := storage.FormatLine(session)
	b.WriteString(line)
	b.WriteByte('\n')

	if _, err := f.WriteAt([]byte(b.String()), size); err != nil {
		s.endOffset = -1
		return storage.IOError("append", s.path, err)
	}

	s.endOffset = lineStart + int64(strings.LastIndexByte(line, '\t')) + 1
	return nil
}

// repairTail makes sure f ends with a newline before anything is appended,
// returning the resulting size. A torn final line that still parses is
// terminated; anything else is cut back to the previous line so it cannot
// end up in the middle of the file.
func repairTail(f *os.File, path string) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, storage.IOError("stat", path, err)
	}
	size := info.Size()

	lines, err := tailLines(f, size, 1)
	if err != nil {
		return 0, storage.IOError("read tail", path, err)
	}
	if len(lines) == 0 || lines[0].terminated {
		return size, nil
	}

	last := lines[0]
	if last.offset > 0 {
		if _, perr := storage.ParseLine(last.text); perr == nil {
			if _, err := f.WriteAt([]byte{'\n'}, size); err != nil {
				return 0, storage.IOError("terminate", path, err)
			}
			return size + 1, nil
		}
	}

	if err := f.Truncate(last.offset); err != nil {
		return 0, storage.IOError("truncate", path, err)
	}
	return last.offset, nil
}

// PatchLastEnd rewrites the end field of the last line.
func (s *Store) PatchLastEnd(ctx context.Context, end int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return storage.IOError("open", s.path, err)
	}
	defer f.Close()

	if s.endOffset < 0 {
		offset, err := locateEnd(f, s.path)
		if err != nil {
			return err
		}
		s.endOffset = offset
	}

	value := []byte(strconv.FormatInt(end, 10) + "\n")
	if _, err := f.WriteAt(value, s.endOffset); err != nil {
		s.endOffset = -1
		return storage.IOError("patch", s.path, err)
	}
	if err := f.Truncate(s.endOffset + int64(len(value))); err != nil {
		s.endOffset = -1
		return storage.IOError("truncate", s.path, err)
	}
	return nil
}

// locateEnd finds the end-field offset of the last line in f.
func locateEnd(f *os.File, path string) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, storage.IOError("stat", path, err)
	}

	lines, err := tailLines(f, info.Size(), 1)
	if err != nil {
		return 0, storage.IOError("read tail", path, err)
	}
	if len(lines) == 0 || (lines[0].offset == 0 && lines[0].text == storage.Header) {
		return 0, fmt.Errorf("patch %s: %w", path, storage.ErrNotFound)
	}

	last := lines[0]
	if cols := strings.Count(last.text, "\t") + 1; cols != storage.Columns {
		return 0, storage.CorruptError(path, fmt.Errorf("last line at byte %d has %d columns, want %d", last.offset, cols, storage.Columns))
	}
	return last.offset + int64(strings.LastIndexByte(last.text, '\t')) + 1, nil
}

// ReadAll streams every session in file order.
func (s *Store) ReadAll(ctx context.Context) iter.Seq2[storage.Session, error] {
	return func(yield func(storage.Session, error) bool) {
		f, err := os.Open(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield(storage.Session{}, storage.IOError("open", s.path, err))
			return
		}
		defer f.Close()

		r := bufio.NewReader(f)
		for lineNo := 1; ; lineNo++ {
			if err := ctx.Err(); err != nil {
				yield(storage.Session{}, err)
				return
			}

			text, err := r.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				yield(storage.Session{}, storage.IOError("read", s.path, err))
				return
			}
			terminated := strings.HasSuffix(text, "\n")
			if text == "" {
				return
			}
			text = strings.TrimSuffix(text, "\n")

			if lineNo == 1 {
				if text != storage.Header && terminated {
					yield(storage.Session{}, &storage.ParseError{
						Source:   s.path,
						Position: "line 1",
						Err:      fmt.Errorf("missing header %q", storage.Header),
					})
					return
				}
				if !terminated {
					return
				}
				continue
			}

			session, perr := storage.ParseLine(text)
			if perr != nil {
				// An unterminated final line is a write in progress.
				if !terminated {
					return
				}
				yield(storage.Session{}, &storage.ParseError{
					Source:   s.path,
					Position: fmt.Sprintf("line %d", lineNo),
					Err:      perr,
				})
				return
			}
			if !yield(session, nil) {
				return
			}
			if !terminated {
				return
			}
		}
	}
}

// ReadTail streams the last n sessions in file order.
func (s *Store) ReadTail(ctx context.Context, n int) iter.Seq2[storage.Session, error] {
	return func(yield func(storage.Session, error) bool) {
		if n <= 0 {
			return
		}
		if err := ctx.Err(); err != nil {
			yield(storage.Session{}, err)
			return
		}

		f, err := os.Open(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield(storage.Session{}, storage.IOError("open", s.path, err))
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			yield(storage.Session{}, storage.IOError("stat", s.path, err))
			return
		}

		// One extra line covers a torn final line that gets skipped.
		lines, err := tailLines(f, info.Size(), n+1)
		if err != nil {
			yield(storage.Session{}, storage.IOError("read tail", s.path, err))
			return
		}

		sessions := make([]storage.Session, 0, len(lines))
		for i, l := range lines {
			if l.offset == 0 && l.text == storage.Header {
				continue
			}
			session, perr := storage.ParseLine(l.text)
			if perr != nil {
				if i == len(lines)-1 && !l.terminated {
					continue
				}
				yield(storage.Session{}, &storage.ParseError{
					Source:   s.path,
					Position: fmt.Sprintf("byte %d", l.offset),
					Err:      perr,
				})
				return
			}
			sessions = append(sessions, session)
		}
		if len(sessions) > n {
			sessions = sessions[len(sessions)-n:]
		}

		for _, session := range sessions {
			if !yield(session, nil) {
				return
			}
		}
	}
}
