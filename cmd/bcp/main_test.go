package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/bcp/pkg/buildtool"
	bcperrors "github.com/odvcencio/bcp/pkg/errors"
	"github.com/odvcencio/bcp/pkg/paths"
	"github.com/odvcencio/bcp/pkg/runner"
	"github.com/odvcencio/bcp/pkg/state"
)

const testCatalog = `knobs:
  - path: profile.release.opt-level
    env_var: CARGO_PROFILE_RELEASE_OPT_LEVEL
    values: ["0", "1", "2", "3"]
    default: "3"
`

// fakeCargo succeeds on every call except the failOn-th (1-based).
type fakeCargo struct {
	calls  int
	failOn int
}

func (f *fakeCargo) Invoke(ctx context.Context, subcommand string, args []string, env map[string]string) (buildtool.Outcome, error) {
	f.calls++
	if f.calls == f.failOn {
		return buildtool.Outcome{ExitCode: 101}, nil
	}
	return buildtool.Outcome{}, nil
}

type testEnv struct {
	dataDir    string
	configPath string
	cargo      *fakeCargo
}

func setupEnv(t *testing.T, extraConfig string) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(paths.EnvLogDir, "")

	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0o644))

	configPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`manifest_path: %s
data_dir: %s
catalog_file: %s
report:
  formats: [markdown, html]
%s`, filepath.Join(dir, "Cargo.toml"), dir, catalogPath, extraConfig)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	env := &testEnv{dataDir: dir, configPath: configPath, cargo: &fakeCargo{}}
	previous := newInvokerFn
	newInvokerFn = func(ctx context.Context, a *app, output io.Writer) (buildtool.Invoker, error) {
		return env.cargo, nil
	}
	t.Cleanup(func() { newInvokerFn = previous })
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) state(t *testing.T) *state.State {
	t.Helper()
	st, err := state.NewStore(paths.StatePath(e.dataDir)).Read()
	require.NoError(t, err)
	return st
}

func TestRun_CompletesAndResumesIdempotently(t *testing.T) {
	env := setupEnv(t, "")

	_, err := env.run(t, "run")
	require.NoError(t, err)

	steps := len(runner.Protocol(""))
	assert.Equal(t, 4*steps, env.cargo.calls)
	st := env.state(t)
	assert.True(t, st.Complete())
	assert.FileExists(t, paths.ReportPath(env.dataDir, "html"))
	assert.FileExists(t, paths.ReportPath(env.dataDir, "md"))
	assert.FileExists(t, filepath.Join(env.dataDir, paths.HistoryFile))

	env.cargo.calls = 0
	_, err = env.run(t, "run")
	require.NoError(t, err)
	assert.Zero(t, env.cargo.calls, "a complete sweep must not invoke the build tool again")
	assert.Equal(t, st.Results, env.state(t).Results)
}

func TestRun_BuildFailureKeepsPrefix(t *testing.T) {
	env := setupEnv(t, "")
	steps := len(runner.Protocol(""))
	env.cargo.failOn = steps + 2 // second case, build step

	_, err := env.run(t, "run")
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCodeForError(err))
	var stepErr *runner.StepError
	require.True(t, errors.As(err, &stepErr))

	assert.Len(t, env.state(t).Results, 1)

	env.cargo.failOn = 0
	env.cargo.calls = 0
	_, err = env.run(t, "run")
	require.NoError(t, err)
	assert.Equal(t, 3*steps, env.cargo.calls)
	assert.Len(t, env.state(t).Results, 4)
}

func TestPlan(t *testing.T) {
	env := setupEnv(t, "")

	out, err := env.run(t, "plan", "--env")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan from catalog: 4 cases over 1 knobs")
	assert.Contains(t, out, "   0  baseline\n")
	assert.Contains(t, out, "   1  opt-level=0  [CARGO_PROFILE_RELEASE_OPT_LEVEL=0]")
	assert.Contains(t, out, "1 value(s) equal to their default were skipped")
	assert.Zero(t, env.cargo.calls)
}

func TestCatalog(t *testing.T) {
	env := setupEnv(t, "")

	out, err := env.run(t, "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "profile.release.opt-level (CARGO_PROFILE_RELEASE_OPT_LEVEL) default=3")
}

func TestStatus(t *testing.T) {
	env := setupEnv(t, "")

	out, err := env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Phase: fresh")

	env.cargo.failOn = len(runner.Protocol("")) + 1
	_, err = env.run(t, "run")
	require.Error(t, err)

	out, err = env.run(t, "status", "--events", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Phase:    resuming")
	assert.Contains(t, out, "Progress: 1/4")
	assert.Contains(t, out, "Next:     case 1 (opt-level=0)")
	assert.Contains(t, out, "experiment.failed")
}

func TestReport(t *testing.T) {
	env := setupEnv(t, "")
	env.cargo.failOn = 1

	_, err := env.run(t, "run")
	require.Error(t, err)
	_, err = env.run(t, "report")
	require.Error(t, err, "no state file yet")
	assert.Equal(t, exitFailure, exitCodeForError(err))

	env.cargo.failOn = 0
	_, err = env.run(t, "run")
	require.NoError(t, err)
	require.NoError(t, os.Remove(paths.ReportPath(env.dataDir, "md")))

	_, err = env.run(t, "report", "--format", "markdown")
	require.NoError(t, err)
	data, err := os.ReadFile(paths.ReportPath(env.dataDir, "md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "| Rank | Experiment |")

	_, err = env.run(t, "report", "--format", "pdf")
	assert.Equal(t, exitUsage, exitCodeForError(err))
}

func TestReport_IncompleteIsInvariantViolation(t *testing.T) {
	env := setupEnv(t, "")
	env.cargo.failOn = len(runner.Protocol("")) + 1

	_, err := env.run(t, "run")
	require.Error(t, err)

	_, err = env.run(t, "report")
	require.Error(t, err)
	assert.True(t, bcperrors.IsCode(err, bcperrors.ErrCodeInvariant))
	assert.Equal(t, exitInvariant, exitCodeForError(err))
}

func TestHistory(t *testing.T) {
	env := setupEnv(t, "")

	out, err := env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No archived sweeps.")

	_, err = env.run(t, "run")
	require.NoError(t, err)
	id := env.state(t).ID

	out, err = env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = env.run(t, "history", id)
	require.NoError(t, err)
	assert.Contains(t, out, "opt-level=2")

	out, err = env.run(t, "history", "--label", "baseline")
	require.NoError(t, err)
	assert.Contains(t, out, id)
}

func TestUsageErrors(t *testing.T) {
	env := setupEnv(t, "")

	_, err := env.run(t, "run", "--no-such-flag")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeForError(err))

	_, err = env.run(t, "run", "--executor", "ssh")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeForError(err))
	assert.Zero(t, env.cargo.calls)
}

func TestInvalidCatalogFile(t *testing.T) {
	env := setupEnv(t, "")
	bad := filepath.Join(env.dataDir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("knobs: []\n"), 0o644))

	_, err := env.run(t, "plan", "--catalog", bad)
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeForError(err))
}

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), exitFailure},
		{"explicit", withExitCode(errors.New("usage"), exitUsage), exitUsage},
		{"config", bcperrors.New(bcperrors.ErrCodeConfigInvalid, "bad"), exitUsage},
		{"invariant", fmt.Errorf("case 2: %w", bcperrors.New(bcperrors.ErrCodeInvariant, "bad")), exitInvariant},
		{"state write", bcperrors.New(bcperrors.ErrCodeStateWrite, "disk full"), exitFailure},
		{"canceled", context.Canceled, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeForError(tt.err))
		})
	}
	assert.Equal(t, exitFailure, exitError{}.ExitCode())
	assert.True(t, strings.Contains(withExitCode(errors.New("x"), 2).Error(), "x"))
}

func TestWatch_ReturnsOnceComplete(t *testing.T) {
	env := setupEnv(t, "")
	_, err := env.run(t, "run")
	require.NoError(t, err)

	out, err := env.run(t, "watch")
	require.NoError(t, err)
	assert.Contains(t, out, "4/4 recorded; last: opt-level=2")
	assert.Contains(t, out, "sweep complete")
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, errors.New("boom"), true)
	assert.Equal(t, "Error: boom\n", buf.String())

	structured := bcperrors.New(bcperrors.ErrCodeStateCorrupt, "decode state").
		WithUserMessage("the sweep state file is damaged").
		WithRemediation("move bcp-state.json aside")

	buf.Reset()
	printError(&buf, structured, false)
	out := buf.String()
	assert.Contains(t, out, "Error: [STATE_CORRUPT] decode state")
	assert.Contains(t, out, "  the sweep state file is damaged\n")
	assert.Contains(t, out, "  hint: move bcp-state.json aside\n")
	assert.NotContains(t, out, "Stack trace:")

	buf.Reset()
	printError(&buf, fmt.Errorf("load: %w", structured), true)
	assert.Contains(t, buf.String(), "Stack trace:")
	assert.Contains(t, buf.String(), "TestPrintError")
}

func TestRootFlags_NoColorAndDebug(t *testing.T) {
	env := setupEnv(t, "")
	t.Setenv("NO_COLOR", "")

	cmd, a := newRootApp()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", env.configPath, "plan"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.False(t, a.noColor)
	assert.False(t, a.debug())

	cmd, a = newRootApp()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", env.configPath, "--no-color", "--log-level", "debug", "plan"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.True(t, a.noColor)
	assert.True(t, a.debug())

	t.Setenv("NO_COLOR", "1")
	cmd, a = newRootApp()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", env.configPath, "plan"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.True(t, a.noColor)
}

func TestRun_DebugLogsProtocolSteps(t *testing.T) {
	env := setupEnv(t, "")

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--config", env.configPath, "--log-level", "debug", "--no-color", "run"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	logs := errOut.String()
	assert.Equal(t, 3, strings.Count(logs, `msg="experiment step"`))
	assert.Contains(t, logs, `command="bench --no-run"`)
	assert.Contains(t, logs, "command=clean")
}
