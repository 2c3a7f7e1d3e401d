package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goodtune/ttw/internal/instance"
	"github.com/goodtune/ttw/internal/stats"
	"github.com/goodtune/ttw/internal/storage"
	"github.com/spf13/cobra"
)

// Process exit codes by error category.
const (
	exitOK             = 0
	exitFailure        = 1
	exitArgument       = 2
	exitAlreadyRunning = 3
	exitStoreIO        = 4
	exitCorrupt        = 5
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case isArgumentError(err):
		return exitArgument
	case errors.Is(err, instance.ErrAlreadyRunning):
		return exitAlreadyRunning
	case errors.Is(err, storage.ErrCorrupt):
		return exitCorrupt
	case errors.Is(err, storage.ErrIO):
		return exitStoreIO
	default:
		return exitFailure
	}
}

// isArgumentError also recognises cobra's own complaints about unknown
// subcommands, which are not wrapped.
func isArgumentError(err error) bool {
	return errors.Is(err, stats.ErrArgument) || strings.HasPrefix(err.Error(), "unknown command")
}

// rangeArgs is cobra.RangeArgs with errors in the argument category.
func rangeArgs(minArgs, maxArgs int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(minArgs, maxArgs)(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", stats.ErrArgument, err)
		}
		return nil
	}
}
