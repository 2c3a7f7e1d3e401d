package usage

import (
	"testing"

	"github.com/goodtune/ttw/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kitty = storage.Identity{Class: "kitty", Title: "bash"}
	code  = storage.Identity{Class: "code", Title: "main.rs"}
)

func openAt(id storage.Identity, start, end int64) *storage.Session {
	return &storage.Session{Class: id.Class, Title: id.Title, Start: start, End: end}
}

func TestStep_FirstObservationOpens(t *testing.T) {
	next, actions := Step(State{}, Input{Now: 100, Window: kitty})

	require.Len(t, actions, 2)
	assert.Equal(t, ActionAppend, actions[0].Kind)
	assert.Equal(t, storage.Session{Class: "kitty", Title: "bash", Start: 100, Open: true}, actions[0].Session)
	assert.Equal(t, patchAction(100), actions[1])

	assert.Equal(t, openAt(kitty, 100, 100), next.Current)
	assert.False(t, next.PendingReopen)
}

func TestStep_SameIdentityExtends(t *testing.T) {
	st := State{Current: openAt(kitty, 100, 100)}

	next, actions := Step(st, Input{Now: 300, Window: kitty})

	assert.Equal(t, []Action{patchAction(300)}, actions)
	assert.Equal(t, openAt(kitty, 100, 300), next.Current)
	assert.Equal(t, int64(100), st.Current.End, "input state must not change")
}

func TestStep_IdentityChangeClosesAndOpens(t *testing.T) {
	st := State{Current: openAt(kitty, 100, 300)}

	next, actions := Step(st, Input{Now: 500, Window: code})

	require.Len(t, actions, 3)
	assert.Equal(t, patchAction(500), actions[0])
	assert.Equal(t, ActionAppend, actions[1].Kind)
	assert.Equal(t, int64(500), actions[1].Session.Start)
	assert.Equal(t, "code", actions[1].Session.Class)
	assert.Equal(t, patchAction(500), actions[2])
	assert.Equal(t, openAt(code, 500, 500), next.Current)
}

func TestStep_TitleChangeIsNewIdentity(t *testing.T) {
	st := State{Current: openAt(kitty, 100, 300)}

	_, actions := Step(st, Input{Now: 500, Window: storage.Identity{Class: "kitty", Title: "vim"}})

	require.Len(t, actions, 3)
	assert.Equal(t, ActionAppend, actions[1].Kind)
}

func TestStep_IdleClosesOnce(t *testing.T) {
	st := State{Current: openAt(kitty, 100, 300)}

	next, actions := Step(st, Input{Now: 500, Window: kitty, Idle: true})
	assert.Equal(t, []Action{patchAction(500)}, actions)
	assert.True(t, next.PendingReopen)
	assert.Equal(t, int64(500), next.Current.End)

	again, actions := Step(next, Input{Now: 700, Window: kitty, Idle: true})
	assert.Empty(t, actions)
	assert.True(t, again.PendingReopen)
	assert.Equal(t, int64(500), again.Current.End)
}

func TestStep_FailureActsAsIdle(t *testing.T) {
	st := State{Current: openAt(kitty, 100, 300)}

	next, actions := Step(st, Input{Now: 400, Failed: true})

	assert.Equal(t, []Action{patchAction(400)}, actions)
	assert.True(t, next.PendingReopen)
}

func TestStep_IdleWithoutSession(t *testing.T) {
	next, actions := Step(State{}, Input{Now: 400, Idle: true})

	assert.Empty(t, actions)
	assert.Nil(t, next.Current)
	assert.False(t, next.PendingReopen)
}

func TestStep_ReopenAfterIdleSameIdentity(t *testing.T) {
	st := State{Current: openAt(kitty, 100, 500), PendingReopen: true}

	next, actions := Step(st, Input{Now: 900, Window: kitty})

	require.Len(t, actions, 2, "the closed session must not be stamped again")
	assert.Equal(t, ActionAppend, actions[0].Kind)
	assert.Equal(t, int64(900), actions[0].Session.Start)
	assert.Equal(t, patchAction(900), actions[1])
	assert.Equal(t, openAt(kitty, 900, 900), next.Current)
	assert.False(t, next.PendingReopen)
}

func TestStep_ClockStepsBackwards(t *testing.T) {
	st := State{Current: openAt(kitty, 1000, 1200)}

	next, actions := Step(st, Input{Now: 900, Window: kitty})
	assert.Equal(t, []Action{patchAction(1000)}, actions)
	assert.Equal(t, int64(1000), next.Current.End)

	next, actions = Step(st, Input{Now: 900, Window: code})
	require.Len(t, actions, 3)
	assert.Equal(t, int64(1000), actions[1].Session.Start, "starts must not decrease")
	assert.Equal(t, int64(1000), next.Current.Start)
}
