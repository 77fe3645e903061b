package buildtool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/odvcencio/bcp/pkg/plan"
)

// DefaultComposeFile is the compose file name FindComposeFile looks for.
const DefaultComposeFile = "docker-compose.bcp.yml"

// Compose runs cargo inside a running docker compose service, so the timed
// builds happen in a pinned toolchain image.
type Compose struct {
	ComposeFile  string
	Service      string
	ManifestPath string // path inside the container
	FixedFlags   []string
	Binary       string // cargo binary inside the container

	Stdout io.Writer
	Stderr io.Writer

	command func(ctx context.Context, name string, args ...string) *exec.Cmd // replaced for testing
}

// NewCompose returns a Compose invoker that streams output to the terminal.
func NewCompose(composeFile, service, manifestPath string, fixedFlags []string) *Compose {
	return &Compose{
		ComposeFile:  composeFile,
		Service:      service,
		ManifestPath: manifestPath,
		FixedFlags:   append([]string(nil), fixedFlags...),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}
}

// Invoke runs `docker compose exec -T -e K=V <service> cargo ...`.
func (c *Compose) Invoke(ctx context.Context, subcommand string, args []string, env map[string]string) (Outcome, error) {
	if c.ComposeFile == "" || c.Service == "" {
		return Outcome{}, fmt.Errorf("compose invoker needs a compose file and a service")
	}
	newCmd := c.command
	if newCmd == nil {
		newCmd = exec.CommandContext
	}
	cmd := newCmd(ctx, "docker", c.argv(subcommand, args, env)...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return outcomeFromError(cmd.Run())
}

func (c *Compose) argv(subcommand string, args []string, env map[string]string) []string {
	argv := []string{"compose", "-f", c.ComposeFile, "exec", "-T"}
	for _, kv := range plan.EnvList(env) {
		argv = append(argv, "-e", kv)
	}
	binary := c.Binary
	if binary == "" {
		binary = "cargo"
	}
	argv = append(argv, c.Service, binary)
	return append(argv, commandLine(subcommand, c.ManifestPath, c.FixedFlags, args)...)
}

// ServiceStatus represents docker compose service status.
type ServiceStatus struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Health  string `json:"Health"`
}

// Ready checks that the compose service is running before a sweep starts.
func (c *Compose) Ready(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "compose", "-f", c.ComposeFile, "ps", "--format", "json")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("docker compose ps: %w", err)
	}
	statuses, err := parseStatus(output)
	if err != nil {
		return err
	}
	return serviceRunning(statuses, c.Service)
}

func serviceRunning(statuses []ServiceStatus, service string) error {
	for _, s := range statuses {
		if s.Service != service {
			continue
		}
		if s.State != "running" {
			return fmt.Errorf("compose service %s is %s", service, s.State)
		}
		return nil
	}
	return fmt.Errorf("compose service %s not found", service)
}

func parseStatus(output []byte) ([]ServiceStatus, error) {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	statuses := make([]ServiceStatus, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var status ServiceStatus
		if err := json.Unmarshal([]byte(line), &status); err != nil {
			return nil, fmt.Errorf("parse compose status: %w", err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// FindComposeFile searches startPath and its parents for DefaultComposeFile.
func FindComposeFile(startPath string) (string, error) {
	current := startPath

	for {
		composePath := filepath.Join(current, DefaultComposeFile)
		if info, err := os.Stat(composePath); err == nil && !info.IsDir() {
			return composePath, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s found", DefaultComposeFile)
}
