package usage

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/ttw/internal/observe"
	"github.com/goodtune/ttw/internal/storage"
	"github.com/goodtune/ttw/internal/storage/tsv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.UnixMilli(1_700_000_000_000).UTC()

type observation struct {
	window storage.Identity
	err    error
}

// scriptedSource returns the queued observations in order, repeating the
// last one once the queue is exhausted.
type scriptedSource struct {
	mu    sync.Mutex
	queue []observation
	calls int
}

func (s *scriptedSource) Observe(context.Context) (storage.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.queue[min(s.calls, len(s.queue)-1)]
	s.calls++
	return o.window, o.err
}

func (s *scriptedSource) set(o observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = []observation{o}
	s.calls = 0
}

type fakeIdle struct {
	mu   sync.Mutex
	idle bool
	err  error
}

func (f *fakeIdle) Idle(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle, f.err
}

func (f *fakeIdle) set(idle bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idle, f.err = idle, err
}

type harness struct {
	tracker *Tracker
	store   *tsv.Store
	clock   *clockwork.FakeClock
	source  *scriptedSource
	idle    *fakeIdle
}

func newHarness(t *testing.T, first observation) *harness {
	t.Helper()

	store, err := tsv.Open(filepath.Join(t.TempDir(), "sessions.tsv"))
	require.NoError(t, err)

	h := &harness{
		store:  store,
		clock:  clockwork.NewFakeClockAt(t0),
		source: &scriptedSource{queue: []observation{first}},
		idle:   &fakeIdle{},
	}
	h.tracker = NewTracker(store.Sessions(), h.source, h.idle, Config{Clock: h.clock}, zerolog.Nop())
	return h
}

func (h *harness) records(t *testing.T) []storage.Session {
	t.Helper()

	var out []storage.Session
	for s, err := range h.store.Sessions().ReadAll(context.Background()) {
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func (h *harness) tickAt(t *testing.T, offset time.Duration) {
	t.Helper()
	h.clock.Advance(t0.Add(offset).Sub(h.clock.Now()))
	require.NoError(t, h.tracker.Tick(context.Background()))
}

func ms(offset time.Duration) int64 {
	return t0.Add(offset).UnixMilli()
}

func TestTracker_StartOpensAndStamps(t *testing.T) {
	h := newHarness(t, observation{window: kitty})

	require.NoError(t, h.tracker.Start(context.Background()))

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, storage.Session{Class: "kitty", Title: "bash", Start: ms(0), End: ms(0)}, records[0])
	assert.False(t, h.tracker.State().PendingReopen)
}

func TestTracker_SameIdentityExtendsOneRecord(t *testing.T) {
	h := newHarness(t, observation{window: kitty})
	require.NoError(t, h.tracker.Start(context.Background()))

	h.tickAt(t, 200*time.Millisecond)
	h.tickAt(t, 400*time.Millisecond)

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, ms(0), records[0].Start)
	assert.Equal(t, ms(400*time.Millisecond), records[0].End)
}

func TestTracker_IdleThenSameIdentityOpensNewRecord(t *testing.T) {
	h := newHarness(t, observation{window: kitty})
	require.NoError(t, h.tracker.Start(context.Background()))

	h.tickAt(t, time.Second)

	h.idle.set(true, nil)
	h.tickAt(t, 2*time.Second)
	h.tickAt(t, 10*time.Second)

	h.idle.set(false, nil)
	h.tickAt(t, 20*time.Second)

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, storage.Session{Class: "kitty", Title: "bash", Start: ms(0), End: ms(2 * time.Second)}, records[0])
	assert.Equal(t, storage.Session{Class: "kitty", Title: "bash", Start: ms(20 * time.Second), End: ms(20 * time.Second)}, records[1])
}

func TestTracker_IdentityChange(t *testing.T) {
	h := newHarness(t, observation{window: kitty})
	require.NoError(t, h.tracker.Start(context.Background()))

	h.source.set(observation{window: code})
	h.tickAt(t, time.Second)
	h.tickAt(t, 4*time.Second)

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, ms(time.Second), records[0].End)
	assert.Equal(t, ms(time.Second), records[1].Start)
	assert.Equal(t, ms(4*time.Second), records[1].End)
}

func TestTracker_ObservationFailureActsAsIdle(t *testing.T) {
	h := newHarness(t, observation{window: kitty})
	require.NoError(t, h.tracker.Start(context.Background()))

	h.source.set(observation{err: observe.ErrObservation})
	h.tickAt(t, time.Second)
	assert.True(t, h.tracker.State().PendingReopen)

	h.source.set(observation{window: kitty})
	h.tickAt(t, 3*time.Second)

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, ms(time.Second), records[0].End)
	assert.Equal(t, ms(3*time.Second), records[1].Start)
}

func TestTracker_IdleErrorCountsAsActive(t *testing.T) {
	h := newHarness(t, observation{window: kitty})
	require.NoError(t, h.tracker.Start(context.Background()))

	h.idle.set(true, errors.New("xprintidle: not found"))
	h.tickAt(t, time.Second)

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, ms(time.Second), records[0].End)
	assert.False(t, h.tracker.State().PendingReopen)
}

func TestTracker_StartClosesStaleOpenRecord(t *testing.T) {
	h := newHarness(t, observation{window: code})
	ctx := context.Background()

	stale := storage.Session{Class: "kitty", Title: "bash", Start: ms(-time.Hour), Open: true}
	require.NoError(t, h.store.Sessions().Append(ctx, stale))

	require.NoError(t, h.tracker.Start(ctx))

	records := h.records(t)
	require.Len(t, records, 2)
	assert.False(t, records[0].Open)
	assert.Equal(t, stale.Start, records[0].End)
	assert.Equal(t, "code", records[1].Class)
	assert.Equal(t, ms(0), records[1].Start)
}

func TestTracker_StartAfterTornTrailingLine(t *testing.T) {
	h := newHarness(t, observation{window: kitty})
	ctx := context.Background()

	torn := storage.Header + "\nkitty\tbash\t1000\t2000\ncode\tmain.go\t3000\t40"
	require.NoError(t, os.WriteFile(h.store.Path(), []byte(torn), 0644))

	require.NoError(t, h.tracker.Start(ctx))

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2000), records[0].End)
	assert.Equal(t, "kitty", records[1].Class)
	assert.Equal(t, ms(0), records[1].Start)
	assert.Equal(t, ms(0), records[1].End)
}

func TestTracker_StartRetriesObservation(t *testing.T) {
	store, err := tsv.Open(filepath.Join(t.TempDir(), "sessions.tsv"))
	require.NoError(t, err)

	source := &scriptedSource{queue: []observation{
		{err: observe.ErrObservation},
		{err: observe.ErrObservation},
		{window: kitty},
	}}
	tracker := NewTracker(store.Sessions(), source, &fakeIdle{}, Config{
		StartupAttempts: 5,
		StartupBackoff:  time.Millisecond,
	}, zerolog.Nop())

	require.NoError(t, tracker.Start(context.Background()))
	assert.Equal(t, 3, source.calls)
	assert.Equal(t, "kitty", tracker.State().Current.Class)
}

func TestTracker_StartGivesUp(t *testing.T) {
	store, err := tsv.Open(filepath.Join(t.TempDir(), "sessions.tsv"))
	require.NoError(t, err)

	source := &scriptedSource{queue: []observation{{err: observe.ErrObservation}}}
	tracker := NewTracker(store.Sessions(), source, &fakeIdle{}, Config{
		StartupAttempts: 3,
		StartupBackoff:  time.Millisecond,
	}, zerolog.Nop())

	err = tracker.Start(context.Background())
	assert.ErrorIs(t, err, observe.ErrObservation)
	assert.Equal(t, 3, source.calls)
}

// failingStore accepts reads but fails every write.
type failingStore struct{}

func (failingStore) Append(context.Context, storage.Session) error {
	return storage.IOError("append", "test", errors.New("disk full"))
}

func (failingStore) PatchLastEnd(context.Context, int64) error {
	return storage.IOError("patch", "test", errors.New("disk full"))
}

func (failingStore) ReadAll(context.Context) iter.Seq2[storage.Session, error] {
	return func(func(storage.Session, error) bool) {}
}

func (failingStore) ReadTail(context.Context, int) iter.Seq2[storage.Session, error] {
	return func(func(storage.Session, error) bool) {}
}

func TestTracker_StoreFailureIsFatal(t *testing.T) {
	tracker := NewTracker(failingStore{}, &scriptedSource{queue: []observation{{window: kitty}}}, &fakeIdle{}, Config{
		Clock: clockwork.NewFakeClockAt(t0),
	}, zerolog.Nop())

	err := tracker.Start(context.Background())
	assert.ErrorIs(t, err, storage.ErrIO)
	assert.Nil(t, tracker.State().Current, "state must not advance past a failed write")
}

func TestTracker_LoopStampsOnShutdown(t *testing.T) {
	h := newHarness(t, observation{window: kitty})
	require.NoError(t, h.tracker.Start(context.Background()))

	h.clock.Advance(1500 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.tracker.Loop(ctx))

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, ms(1500*time.Millisecond), records[0].End)
}

func TestTracker_LoopTicksOnClock(t *testing.T) {
	h := newHarness(t, observation{window: kitty})
	require.NoError(t, h.tracker.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.tracker.Loop(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	require.NoError(t, h.clock.BlockUntilContext(waitCtx, 1))
	h.clock.Advance(DefaultPollInterval)
	require.Eventually(t, func() bool {
		return h.tracker.LastTick().Equal(t0.Add(DefaultPollInterval))
	}, 5*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, ms(DefaultPollInterval), records[0].End)
}
