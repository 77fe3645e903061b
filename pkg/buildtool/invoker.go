// Package buildtool runs the external build tool (cargo) on behalf of the
// experiment runner.
package buildtool

//go:generate mockgen -source=invoker.go -destination=mock_invoker.go -package=buildtool

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Invoker runs one build-tool subcommand and blocks until it exits.
//
// A returned error means the process could not be run at all (binary missing,
// context cancelled before start). A process that ran and exited non-zero is
// reported through Outcome, not through the error.
type Invoker interface {
	Invoke(ctx context.Context, subcommand string, args []string, env map[string]string) (Outcome, error)
}

// Outcome is the exit status of one invocation.
type Outcome struct {
	ExitCode int
}

// Success reports whether the invocation exited cleanly.
func (o Outcome) Success() bool {
	return o.ExitCode == 0
}

// outcomeFromError converts the result of exec.Cmd.Run into an Outcome.
func outcomeFromError(err error) (Outcome, error) {
	if err == nil {
		return Outcome{}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code == 0 {
			// Killed by a signal; ExitCode reports -1 in that case but be safe.
			code = -1
		}
		return Outcome{ExitCode: code}, nil
	}
	return Outcome{}, err
}

// commandLine assembles "<subcommand> --manifest-path <path> <fixed...> <args...>".
func commandLine(subcommand, manifestPath string, fixed, args []string) []string {
	line := []string{subcommand}
	if strings.TrimSpace(manifestPath) != "" {
		line = append(line, "--manifest-path", manifestPath)
	}
	line = append(line, fixed...)
	line = append(line, args...)
	return line
}
