package observe

import (
	"context"
	"strings"

	"github.com/goodtune/ttw/internal/storage"
)

// CommandSource asks an external command for the focused window. The command
// prints the window class on its first line and the title on the rest, as
// `xdotool getwindowfocus getwindowclassname getwindowname` does.
type CommandSource struct {
	argv []string
	run  Runner
}

// NewCommandSource creates a source for argv. A nil run uses ExecRunner.
func NewCommandSource(argv []string, run Runner) *CommandSource {
	if run == nil {
		run = ExecRunner
	}
	return &CommandSource{argv: argv, run: run}
}

// Observe runs the command once and parses its output.
func (s *CommandSource) Observe(ctx context.Context) (storage.Identity, error) {
	out, err := s.run(ctx, s.argv)
	if err != nil {
		return storage.Identity{}, observationError("%v", err)
	}
	return parseWindow(string(out))
}

func parseWindow(out string) (storage.Identity, error) {
	lines := strings.Split(strings.TrimSuffix(strings.TrimSuffix(out, "\n"), "\r"), "\n")
	if len(lines) < 2 {
		return storage.Identity{}, observationError("expected class and title, got %q", out)
	}

	class := storage.CleanField(lines[0])
	if class == "" {
		return storage.Identity{}, observationError("empty window class")
	}

	return storage.Identity{
		Class: class,
		Title: storage.CleanField(strings.Join(lines[1:], " ")),
	}, nil
}
