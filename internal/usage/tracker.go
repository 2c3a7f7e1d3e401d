package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/ttw/internal/metrics"
	"github.com/goodtune/ttw/internal/observe"
	"github.com/goodtune/ttw/internal/retry"
	"github.com/goodtune/ttw/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	// DefaultPollInterval is the pause between ticks
	DefaultPollInterval = 200 * time.Millisecond

	// DefaultStartupAttempts bounds the first observation retry
	DefaultStartupAttempts = 10

	// DefaultStartupBackoff is the pause between startup attempts
	DefaultStartupBackoff = 500 * time.Millisecond
)

// Tracker polls the desktop and keeps the session log current
type Tracker struct {
	sessions storage.SessionStore
	source   observe.Source
	idle     observe.IdleDetector
	config   Config
	clock    clockwork.Clock
	logger   zerolog.Logger

	mu       sync.RWMutex
	state    State
	lastTick time.Time
}

// Config holds tracker configuration
type Config struct {
	PollInterval    time.Duration
	StartupAttempts int
	StartupBackoff  time.Duration
	Clock           clockwork.Clock
}

// NewTracker creates a new usage tracker
func NewTracker(sessions storage.SessionStore, source observe.Source, idle observe.IdleDetector, config Config, logger zerolog.Logger) *Tracker {
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.StartupAttempts == 0 {
		config.StartupAttempts = DefaultStartupAttempts
	}
	if config.StartupBackoff == 0 {
		config.StartupBackoff = DefaultStartupBackoff
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	return &Tracker{
		sessions: sessions,
		source:   source,
		idle:     idle,
		config:   config,
		clock:    config.Clock,
		logger:   logger.With().Str("component", "tracker").Logger(),
	}
}

// Run starts the tracker and polls until ctx is cancelled
func (t *Tracker) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	return t.Loop(ctx)
}

// Start closes any session left open by a previous run, waits for the first
// successful observation and opens the first session.
func (t *Tracker) Start(ctx context.Context) error {
	if err := t.closeStale(ctx); err != nil {
		return err
	}

	policy := retry.Policy{
		MaxAttempts: t.config.StartupAttempts,
		Backoff:     t.config.StartupBackoff,
		Clock:       t.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			t.logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("First observation failed, retrying")
		},
	}

	window, err := retry.Do(ctx, policy, classifyObservation, t.source.Observe)
	if err != nil {
		return fmt.Errorf("first observation: %w", err)
	}

	if err := t.advance(ctx, Input{Now: t.now(), Window: window}); err != nil {
		return err
	}

	t.logger.Info().
		Str("class", window.Class).
		Str("title", window.Title).
		Msg("Tracking started")

	return nil
}

// Loop ticks every poll interval until ctx is cancelled, then stamps the
// open session one last time.
func (t *Tracker) Loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return t.shutdown(context.WithoutCancel(ctx))
		case <-t.clock.After(t.config.PollInterval):
		}

		if err := t.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return t.shutdown(context.WithoutCancel(ctx))
			}
			return err
		}
	}
}

// Tick performs one observation and applies the resulting store writes.
// Only store failures are returned.
func (t *Tracker) Tick(ctx context.Context) error {
	in := Input{Now: t.now()}

	window, err := t.source.Observe(ctx)
	if err != nil {
		in.Failed = true
		metrics.ObservationFailures.WithLabelValues("window").Inc()
		t.logger.Debug().Err(err).Msg("Window observation failed")
	} else {
		in.Window = window
	}

	idle, err := t.idle.Idle(ctx)
	if err != nil {
		metrics.ObservationFailures.WithLabelValues("idle").Inc()
		t.logger.Warn().Err(err).Msg("Idle detection failed, assuming active")
		idle = false
	}
	in.Idle = idle

	metrics.TicksTotal.Inc()
	if idle {
		metrics.IdleTicksTotal.Inc()
	}

	return t.advance(ctx, in)
}

// State returns a snapshot of the tracker state
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := t.state
	if st.Current != nil {
		current := *st.Current
		st.Current = &current
	}
	return st
}

// LastTick returns when the last tick completed
func (t *Tracker) LastTick() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastTick
}

// advance runs Step and writes its actions, committing the new state only
// once every write succeeded.
func (t *Tracker) advance(ctx context.Context, in Input) error {
	t.mu.RLock()
	prev := t.state
	t.mu.RUnlock()

	next, actions := Step(prev, in)

	if err := t.apply(ctx, actions); err != nil {
		return err
	}

	if prev.Current != nil && !prev.PendingReopen && len(actions) > 0 {
		elapsed := max(actions[0].End-prev.Current.End, 0)
		metrics.FocusSeconds.WithLabelValues(prev.Current.Class).Add(float64(elapsed) / 1000)
	}

	if prev.Current != nil && !prev.PendingReopen && next.PendingReopen {
		t.logger.Debug().
			Str("class", prev.Current.Class).
			Bool("idle", in.Idle).
			Bool("failed", in.Failed).
			Msg("Session paused")
	}

	t.mu.Lock()
	t.state = next
	t.lastTick = t.clock.Now()
	t.mu.Unlock()

	return nil
}

func (t *Tracker) apply(ctx context.Context, actions []Action) error {
	for _, action := range actions {
		started := t.clock.Now()

		var err error
		switch action.Kind {
		case ActionAppend:
			err = t.sessions.Append(ctx, action.Session)
		case ActionPatchEnd:
			err = t.sessions.PatchLastEnd(ctx, action.End)
		}

		op := action.Kind.String()
		metrics.StoreWriteDuration.WithLabelValues(op).Observe(t.clock.Since(started).Seconds())

		if err != nil {
			metrics.StoreErrors.WithLabelValues(op).Inc()
			return fmt.Errorf("session store %s: %w", op, err)
		}

		if action.Kind == ActionAppend {
			metrics.SessionsOpened.WithLabelValues(action.Session.Class).Inc()
			t.logger.Info().
				Str("class", action.Session.Class).
				Str("title", action.Session.Title).
				Int64("start", action.Session.Start).
				Msg("Opened session")
		}
	}
	return nil
}

// closeStale closes a session that a crashed run left open. Its end is set to
// its start since the real end is unknown.
func (t *Tracker) closeStale(ctx context.Context) error {
	var (
		last  storage.Session
		found bool
	)
	for s, err := range t.sessions.ReadTail(ctx, 1) {
		if err != nil {
			return fmt.Errorf("read last session: %w", err)
		}
		last, found = s, true
	}

	// Writes happen after the read has finished; some backends hold a
	// connection or transaction open while iterating.
	if !found || !last.Open {
		return nil
	}

	if err := t.sessions.PatchLastEnd(ctx, last.Start); err != nil {
		return fmt.Errorf("close stale session: %w", err)
	}
	t.logger.Warn().
		Str("class", last.Class).
		Int64("start", last.Start).
		Msg("Closed session left open by a previous run")

	return nil
}

func (t *Tracker) shutdown(ctx context.Context) error {
	st := t.State()
	if st.Current == nil || st.PendingReopen {
		t.logger.Info().Msg("Tracker stopped")
		return nil
	}

	end := max(t.now(), st.Current.Start)
	if err := t.sessions.PatchLastEnd(ctx, end); err != nil {
		return fmt.Errorf("final session stamp: %w", err)
	}

	t.logger.Info().Str("class", st.Current.Class).Msg("Tracker stopped")
	return nil
}

func (t *Tracker) now() int64 {
	return t.clock.Now().UnixMilli()
}

func classifyObservation(err error) retry.Action {
	if errors.Is(err, observe.ErrObservation) {
		return retry.Retry
	}
	return retry.Stop
}
