package buildtool

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/odvcencio/bcp/pkg/plan"
)

// Cargo runs cargo directly on the local machine.
type Cargo struct {
	// Binary is the cargo executable; "cargo" when empty.
	Binary string
	// ManifestPath is passed as --manifest-path on every invocation.
	ManifestPath string
	// FixedFlags are appended to every invocation, e.g. flags that enable
	// profile overrides through the environment on older toolchains.
	FixedFlags []string
	// Dir is the working directory; the current directory when empty.
	Dir string

	Stdout io.Writer
	Stderr io.Writer

	command func(ctx context.Context, name string, args ...string) *exec.Cmd // replaced for testing
}

// NewCargo returns a Cargo invoker that streams output to the terminal.
func NewCargo(binary, manifestPath string, fixedFlags []string) *Cargo {
	return &Cargo{
		Binary:       binary,
		ManifestPath: manifestPath,
		FixedFlags:   append([]string(nil), fixedFlags...),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}
}

// Invoke runs cargo with the subcommand and the env overrides layered on top of
// the inherited environment.
func (c *Cargo) Invoke(ctx context.Context, subcommand string, args []string, env map[string]string) (Outcome, error) {
	cmd := c.cmd(ctx, subcommand, args, env)
	return outcomeFromError(cmd.Run())
}

func (c *Cargo) cmd(ctx context.Context, subcommand string, args []string, env map[string]string) *exec.Cmd {
	binary := c.Binary
	if binary == "" {
		binary = "cargo"
	}
	newCmd := c.command
	if newCmd == nil {
		newCmd = exec.CommandContext
	}
	cmd := newCmd(ctx, binary, commandLine(subcommand, c.ManifestPath, c.FixedFlags, args)...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), plan.EnvList(env)...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return cmd
}
