package usage

import (
	"fmt"

	"github.com/goodtune/ttw/internal/storage"
)

// State is the tracker's memory between ticks.
type State struct {
	// Current is the newest session, nil before the first one opens. Its End
	// is the last value written to the store.
	Current *storage.Session
	// PendingReopen is set once Current has been closed by an idle or failed
	// tick; the next valid observation opens a new session.
	PendingReopen bool
}

// Input is what one tick observed.
type Input struct {
	Now    int64 // milliseconds since the epoch
	Window storage.Identity
	Failed bool // the observation failed; Window is meaningless
	Idle   bool
}

// ActionKind names a store write.
type ActionKind int

const (
	ActionAppend ActionKind = iota
	ActionPatchEnd
)

func (k ActionKind) String() string {
	switch k {
	case ActionAppend:
		return "append"
	case ActionPatchEnd:
		return "patch"
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

// Action is a store write requested by Step.
type Action struct {
	Kind    ActionKind
	Session storage.Session // ActionAppend
	End     int64           // ActionPatchEnd
}

func appendAction(s storage.Session) Action { return Action{Kind: ActionAppend, Session: s} }
func patchAction(end int64) Action         { return Action{Kind: ActionPatchEnd, End: end} }
