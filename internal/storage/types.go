package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Header is the first line of every TSV session log.
const Header = "class\ttitle\tstart\tend"

// Columns is the number of tab-separated fields in a session line.
const Columns = 4

// Identity is the (class, title) pair that distinguishes one focus session
// from another.
type Identity struct {
	Class string
	Title string
}

// Session is a single focus session. Timestamps are milliseconds since the
// Unix epoch, UTC. End is meaningless while Open is true.
type Session struct {
	Class string `json:"class"`
	Title string `json:"title"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Open  bool   `json:"open"`
}

// Identity returns the session's (class, title) pair.
func (s Session) Identity() Identity {
	return Identity{Class: s.Class, Title: s.Title}
}

// EndOr returns the session end, or now when the session is still open.
func (s Session) EndOr(now int64) int64 {
	if s.Open {
		return now
	}
	return s.End
}

var fieldCleaner = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// CleanField makes a window string safe for the tab-separated format.
func CleanField(value string) string {
	return strings.TrimSpace(fieldCleaner.Replace(value))
}

// FormatLine renders a session as a TSV line without the trailing newline.
func FormatLine(s Session) string {
	end := ""
	if !s.Open {
		end = strconv.FormatInt(s.End, 10)
	}
	return strings.Join([]string{
		CleanField(s.Class),
		CleanField(s.Title),
		strconv.FormatInt(s.Start, 10),
		end,
	}, "\t")
}

// ParseLine parses a TSV line produced by FormatLine.
func ParseLine(line string) (Session, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != Columns {
		return Session{}, fmt.Errorf("expected %d columns, got %d", Columns, len(fields))
	}
	if fields[0] == "" {
		return Session{}, fmt.Errorf("empty class")
	}

	start, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("invalid start %q: %w", fields[2], err)
	}

	session := Session{
		Class: fields[0],
		Title: fields[1],
		Start: start,
		Open:  fields[3] == "",
	}
	if !session.Open {
		end, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return Session{}, fmt.Errorf("invalid end %q: %w", fields[3], err)
		}
		if end < start {
			return Session{}, fmt.Errorf("end %d before start %d", end, start)
		}
		session.End = end
	}
	return session, nil
}
