package buildtool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess stands in for cargo. It prints its arguments and the
// value of CARGO_PROFILE_RELEASE_OPT_LEVEL, then exits with BCP_HELPER_EXIT.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("BCP_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	fmt.Fprintf(os.Stdout, "args=%s\n", strings.Join(args, " "))
	fmt.Fprintf(os.Stdout, "opt=%s\n", os.Getenv("CARGO_PROFILE_RELEASE_OPT_LEVEL"))
	code, _ := strconv.Atoi(os.Getenv("BCP_HELPER_EXIT"))
	os.Exit(code)
}

func helperCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	return exec.CommandContext(ctx, os.Args[0], cs...)
}

func TestCargoInvoke(t *testing.T) {
	t.Setenv("BCP_WANT_HELPER_PROCESS", "1")

	tests := []struct {
		name     string
		exit     string
		wantCode int
	}{
		{"success", "0", 0},
		{"failure", "101", 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BCP_HELPER_EXIT", tt.exit)
			var out bytes.Buffer
			c := &Cargo{
				ManifestPath: "Cargo.toml",
				FixedFlags:   []string{"-Z", "unstable-options"},
				Stdout:       &out,
				Stderr:       &out,
				command:      helperCommand,
			}

			outcome, err := c.Invoke(context.Background(), "bench", []string{"--no-run"},
				map[string]string{"CARGO_PROFILE_RELEASE_OPT_LEVEL": "1"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, outcome.ExitCode)
			assert.Equal(t, tt.wantCode == 0, outcome.Success())
			assert.Contains(t, out.String(), "args=cargo bench --manifest-path Cargo.toml -Z unstable-options --no-run")
			assert.Contains(t, out.String(), "opt=1")
		})
	}
}

func TestCargoInvoke_MissingBinary(t *testing.T) {
	c := NewCargo(filepath.Join(t.TempDir(), "no-such-cargo"), "Cargo.toml", nil)
	_, err := c.Invoke(context.Background(), "clean", nil, nil)
	assert.Error(t, err)
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, []string{"clean"}, commandLine("clean", "", nil, nil))
	assert.Equal(t,
		[]string{"bench", "--manifest-path", "a/Cargo.toml", "-q", "--bench", "b"},
		commandLine("bench", "a/Cargo.toml", []string{"-q"}, []string{"--bench", "b"}))
}

func TestComposeArgv(t *testing.T) {
	c := NewCompose("dc.yml", "rust", "/work/Cargo.toml", nil)
	argv := c.argv("bench", []string{"--no-run"}, map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, []string{
		"compose", "-f", "dc.yml", "exec", "-T",
		"-e", "A=1", "-e", "B=2",
		"rust", "cargo", "bench", "--manifest-path", "/work/Cargo.toml", "--no-run",
	}, argv)
}

func TestComposeInvoke_RequiresServiceAndFile(t *testing.T) {
	_, err := (&Compose{}).Invoke(context.Background(), "clean", nil, nil)
	assert.Error(t, err)
}

func TestComposeInvoke_ExitCode(t *testing.T) {
	t.Setenv("BCP_WANT_HELPER_PROCESS", "1")
	t.Setenv("BCP_HELPER_EXIT", "3")
	var out bytes.Buffer
	c := &Compose{ComposeFile: "dc.yml", Service: "rust", Stdout: &out, Stderr: &out, command: helperCommand}

	outcome, err := c.Invoke(context.Background(), "clean", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.ExitCode)
	assert.Contains(t, out.String(), "args=docker compose -f dc.yml exec -T rust cargo clean")
}

func TestParseStatus(t *testing.T) {
	output := []byte(`{"Name":"p-rust-1","Service":"rust","State":"running","Health":""}
{"Name":"p-db-1","Service":"db","State":"exited","Health":""}
`)
	statuses, err := parseStatus(output)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.NoError(t, serviceRunning(statuses, "rust"))
	assert.ErrorContains(t, serviceRunning(statuses, "db"), "exited")
	assert.ErrorContains(t, serviceRunning(statuses, "cache"), "not found")

	_, err = parseStatus([]byte("{not json"))
	assert.Error(t, err)
}

func TestFindComposeFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultComposeFile), []byte("services: {}\n"), 0o644))

	found, err := FindComposeFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DefaultComposeFile), found)
}
