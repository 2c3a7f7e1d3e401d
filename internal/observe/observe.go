// Package observe samples the desktop: which window has focus and whether
// the user is idle.
package observe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/goodtune/ttw/internal/storage"
)

// ErrObservation marks a failed sample. It is transient; the tracker treats
// the tick as idle.
var ErrObservation = errors.New("observation failed")

// Source reports the identity of the focused window.
type Source interface {
	Observe(ctx context.Context) (storage.Identity, error)
}

// IdleDetector reports whether the user has been idle beyond a threshold.
type IdleDetector interface {
	Idle(ctx context.Context) (bool, error)
}

// Runner executes argv and returns its standard output.
type Runner func(ctx context.Context, argv []string) ([]byte, error)

// ExecRunner runs argv as a child process.
func ExecRunner(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", argv[0], err)
	}
	return out, nil
}

func observationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrObservation, fmt.Sprintf(format, args...))
}
