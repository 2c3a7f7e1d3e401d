package usage

import (
	"context"
	"time"

	"github.com/goodtune/ttw/internal/stats"
	"github.com/goodtune/ttw/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// SummaryScheduler logs the previous day's top applications once a day
type SummaryScheduler struct {
	sessions storage.SessionStore
	runTime  time.Time // Time of day to run (only hour and minute are used)
	top      int
	clock    clockwork.Clock
	logger   zerolog.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// NewSummaryScheduler creates a new summary scheduler
func NewSummaryScheduler(sessions storage.SessionStore, runTime string, top int, clock clockwork.Clock, logger zerolog.Logger) (*SummaryScheduler, error) {
	// Parse run time (HH:MM format)
	parsedTime, err := time.Parse("15:04", runTime)
	if err != nil {
		return nil, err
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &SummaryScheduler{
		sessions: sessions,
		runTime:  parsedTime,
		top:      top,
		clock:    clock,
		logger:   logger.With().Str("component", "summary").Logger(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins the summary scheduler
func (ss *SummaryScheduler) Start() {
	go ss.run()
	ss.logger.Info().
		Str("summary_time", ss.runTime.Format("15:04")).
		Msg("Daily usage summary scheduler started")
}

// Stop stops the summary scheduler and waits for it to exit
func (ss *SummaryScheduler) Stop() {
	close(ss.stopChan)
	<-ss.done
	ss.logger.Info().Msg("Daily usage summary scheduler stopped")
}

// run is the main scheduler loop
func (ss *SummaryScheduler) run() {
	defer close(ss.done)

	for {
		// Calculate next run time
		nextRun := ss.calculateNextRun()
		waitDuration := nextRun.Sub(ss.clock.Now())

		ss.logger.Debug().
			Time("next_run", nextRun).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next daily summary")

		// Wait until run time or stop signal
		select {
		case <-ss.clock.After(waitDuration):
			ss.performSummary()
		case <-ss.stopChan:
			return
		}
	}
}

// calculateNextRun calculates the next run time
func (ss *SummaryScheduler) calculateNextRun() time.Time {
	now := ss.clock.Now()

	// Get today's run time
	todayRun := time.Date(
		now.Year(), now.Month(), now.Day(),
		ss.runTime.Hour(), ss.runTime.Minute(), 0, 0,
		now.Location(),
	)

	// If we've already reached today's run time, schedule for tomorrow
	if !now.Before(todayRun) {
		return todayRun.AddDate(0, 0, 1)
	}

	return todayRun
}

// Summarize aggregates the 24 hours before now by class, keeping the top
// entries.
func (ss *SummaryScheduler) Summarize(ctx context.Context, now time.Time) ([]stats.Entry, error) {
	nowMS := now.UnixMilli()
	entries, err := stats.Aggregate(ss.sessions.ReadAll(ctx), stats.Query{
		Range:   stats.Last(nowMS, (24 * time.Hour).Milliseconds()),
		GroupBy: stats.ByClass,
		Now:     nowMS,
	})
	if err != nil {
		return nil, err
	}

	if len(entries) > ss.top {
		entries = entries[:ss.top]
	}
	return entries, nil
}

// performSummary logs the daily summary
func (ss *SummaryScheduler) performSummary() {
	entries, err := ss.Summarize(context.Background(), ss.clock.Now())
	if err != nil {
		ss.logger.Error().Err(err).Msg("Failed to build daily usage summary")
		return
	}

	if len(entries) == 0 {
		ss.logger.Info().Msg("No usage recorded in the last 24 hours")
		return
	}

	for i, entry := range entries {
		ss.logger.Info().
			Int("rank", i+1).
			Str("class", entry.Key).
			Str("duration", stats.Format(entry.Millis)).
			Int64("millis", entry.Millis).
			Msg("Daily usage")
	}
}
