// Package stats turns the session log into per-application totals.
package stats

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"slices"

	"github.com/goodtune/ttw/internal/storage"
)

// ErrArgument marks a malformed query argument.
var ErrArgument = errors.New("invalid argument")

// Range is a closed interval of milliseconds since the epoch.
type Range struct {
	Start int64
	End   int64
}

// Last returns [now-d, now].
func Last(now, d int64) Range {
	return Range{Start: now - d, End: now}
}

// Span returns [start, end], rejecting reversed bounds.
func Span(start, end int64) (Range, error) {
	if end < start {
		return Range{}, fmt.Errorf("%w: range end precedes its start", ErrArgument)
	}
	return Range{Start: start, End: end}, nil
}

// Overlap returns how many milliseconds of s fall inside r. An open session
// is treated as ending at now.
func Overlap(s storage.Session, r Range, now int64) int64 {
	end := s.EndOr(now)
	if end < r.Start || s.Start > r.End {
		return 0
	}
	return max(min(end, r.End)-max(s.Start, r.Start), 0)
}

// GroupBy selects the aggregation key.
type GroupBy int

const (
	ByClass GroupBy = iota
	ByTitle
)

func (g GroupBy) String() string {
	if g == ByTitle {
		return "title"
	}
	return "class"
}

// Query describes one aggregation.
type Query struct {
	Range   Range
	GroupBy GroupBy
	Pattern *regexp.Regexp // nil matches every key
	Now     int64
}

// Entry is one aggregated row. Key is the class, or the title when grouping
// by title.
type Entry struct {
	Key    string
	Class  string
	Millis int64
}

// Aggregate sums the overlap of every session with q.Range per key, drops
// zero totals and keys not matching q.Pattern, and sorts by total descending
// with ties broken by key ascending.
func Aggregate(sessions iter.Seq2[storage.Session, error], q Query) ([]Entry, error) {
	totals := make(map[storage.Identity]int64)

	for s, err := range sessions {
		if err != nil {
			return nil, err
		}

		ms := Overlap(s, q.Range, q.Now)
		if ms == 0 {
			continue
		}

		id := storage.Identity{Class: s.Class}
		if q.GroupBy == ByTitle {
			id.Title = s.Title
		}
		if q.Pattern != nil && !q.Pattern.MatchString(keyOf(id, q.GroupBy)) {
			continue
		}
		totals[id] += ms
	}

	entries := make([]Entry, 0, len(totals))
	for id, ms := range totals {
		entries = append(entries, Entry{Key: keyOf(id, q.GroupBy), Class: id.Class, Millis: ms})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Millis, a.Millis); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return cmp.Compare(a.Class, b.Class)
	})

	return entries, nil
}

func keyOf(id storage.Identity, g GroupBy) string {
	if g == ByTitle {
		return id.Title
	}
	return id.Class
}
