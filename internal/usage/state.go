package usage

import "github.com/goodtune/ttw/internal/storage"

// Step applies one tick to st and returns the next state together with the
// store writes that realise it, in order. It never mutates st.
//
// An idle or failed tick stamps the open session once and marks it for
// reopening. Further idle ticks write nothing, so the idle gap is never
// attributed to the closed session. A valid observation then either extends
// the current session or closes it and opens a new one.
func Step(st State, in Input) (State, []Action) {
	cur := st.Current

	if in.Idle || in.Failed {
		if cur == nil || st.PendingReopen {
			return State{Current: cur, PendingReopen: cur != nil}, nil
		}
		closed := stamp(cur, in.Now)
		return State{Current: closed, PendingReopen: true}, []Action{patchAction(closed.End)}
	}

	if cur != nil && !st.PendingReopen && cur.Identity() == in.Window {
		extended := stamp(cur, in.Now)
		return State{Current: extended}, []Action{patchAction(extended.End)}
	}

	var actions []Action
	start := in.Now
	if cur != nil {
		if !st.PendingReopen {
			cur = stamp(cur, in.Now)
			actions = append(actions, patchAction(cur.End))
		}
		// Starts stay in non-decreasing order.
		start = max(start, cur.End)
	}

	opened := storage.Session{
		Class: in.Window.Class,
		Title: in.Window.Title,
		Start: start,
		Open:  true,
	}
	actions = append(actions, appendAction(opened), patchAction(start))

	opened.End, opened.Open = start, false
	return State{Current: &opened}, actions
}

// stamp returns a copy of s ending at now. The end never precedes the start,
// even if the wall clock stepped backwards.
func stamp(s *storage.Session, now int64) *storage.Session {
	next := *s
	next.End = max(now, s.Start)
	next.Open = false
	return &next
}
