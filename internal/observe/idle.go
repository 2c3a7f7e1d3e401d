package observe

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// CommandIdleDetector reads the idle time in milliseconds from an external
// command such as xprintidle. When override is set, a player reporting
// "Playing" keeps the user active.
type CommandIdleDetector struct {
	idleArgv     []string
	playbackArgv []string
	threshold    time.Duration
	override     bool
	run          Runner
}

// IdleConfig configures a CommandIdleDetector.
type IdleConfig struct {
	IdleCommand      []string
	PlaybackCommand  []string
	Threshold        time.Duration
	PlaybackOverride bool
}

// NewCommandIdleDetector creates an idle detector. A nil run uses ExecRunner.
func NewCommandIdleDetector(cfg IdleConfig, run Runner) *CommandIdleDetector {
	if run == nil {
		run = ExecRunner
	}
	return &CommandIdleDetector{
		idleArgv:     cfg.IdleCommand,
		playbackArgv: cfg.PlaybackCommand,
		threshold:    cfg.Threshold,
		override:     cfg.PlaybackOverride && len(cfg.PlaybackCommand) > 0,
		run:          run,
	}
}

// Idle reports whether input has been absent for at least the threshold.
func (d *CommandIdleDetector) Idle(ctx context.Context) (bool, error) {
	out, err := d.run(ctx, d.idleArgv)
	if err != nil {
		return false, observationError("idle time: %v", err)
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return false, observationError("idle time %q: %v", strings.TrimSpace(string(out)), err)
	}

	if time.Duration(ms)*time.Millisecond < d.threshold {
		return false, nil
	}

	if d.override && d.playing(ctx) {
		return false, nil
	}
	return true, nil
}

// playing reports whether a media player is playing. Players exit non-zero
// when nothing is running, which counts as not playing.
func (d *CommandIdleDetector) playing(ctx context.Context) bool {
	out, err := d.run(ctx, d.playbackArgv)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "Playing" {
			return true
		}
	}
	return false
}
