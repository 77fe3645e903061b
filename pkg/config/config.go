package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
)

// Executors
const (
	ExecutorLocal   = "local"
	ExecutorCompose = "compose"
)

// Report formats
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatXLSX     = "xlsx"
	FormatTerminal = "terminal"
)

// Default configuration values exported for documentation and validation
const (
	DefaultManifestPath   = "Cargo.toml"
	DefaultDataDir        = "./"
	DefaultCargo          = "cargo"
	DefaultExecutor       = ExecutorLocal
	DefaultComposeService = "builder"
	DefaultLogLevel       = "info"
	DefaultServeListen    = "127.0.0.1:7878"
)

var (
	validExecutors = []string{ExecutorLocal, ExecutorCompose}
	validFormats   = []string{FormatMarkdown, FormatHTML, FormatXLSX, FormatTerminal}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Config represents the complete bcp configuration
type Config struct {
	ManifestPath string          `yaml:"manifest_path"`
	DataDir      string          `yaml:"data_dir"`
	Cargo        string          `yaml:"cargo"`
	Bench        string          `yaml:"bench"`
	FixedFlags   []string        `yaml:"fixed_flags"`
	CatalogFile  string          `yaml:"catalog_file"`
	Executor     string          `yaml:"executor"`
	Compose      ComposeConfig   `yaml:"compose"`
	Report       ReportConfig    `yaml:"report"`
	History      HistoryConfig   `yaml:"history"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
	Log          LogConfig       `yaml:"log"`
	Serve        ServeConfig     `yaml:"serve"`
}

// ComposeConfig selects the container that runs cargo for the compose executor.
type ComposeConfig struct {
	File    string `yaml:"file"`
	Service string `yaml:"service"`
}

// ReportConfig lists the formats written when a sweep completes.
type ReportConfig struct {
	Formats []string `yaml:"formats"`
}

// HistoryConfig controls the sqlite archive of completed sweeps.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TelemetryConfig names optional metric and trace outputs. Empty disables.
type TelemetryConfig struct {
	MetricsFile string `yaml:"metrics_file"`
	TraceFile   string `yaml:"trace_file"`
}

// LogConfig sets the console verbosity.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ServeConfig configures `bcp serve`.
type ServeConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		ManifestPath: DefaultManifestPath,
		DataDir:      DefaultDataDir,
		Cargo:        DefaultCargo,
		FixedFlags:   []string{},
		Executor:     DefaultExecutor,
		Compose: ComposeConfig{
			Service: DefaultComposeService,
		},
		Report: ReportConfig{
			Formats: []string{FormatHTML, FormatTerminal},
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		Serve: ServeConfig{
			Listen: DefaultServeListen,
		},
	}
}

// Load loads configuration from default locations with proper precedence:
// defaults, ~/.bcp/config.yaml, ./.bcp/config.yaml, then BCP_* environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".bcp", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, wrapLoadError(err, userConfigPath)
		}
	}

	projectConfigPath := filepath.Join(".", ".bcp", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, wrapLoadError(err, projectConfigPath)
	}

	applyEnvOverrides(cfg, configEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path instead of the
// user and project files. Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, wrapLoadError(err, path)
	}

	applyEnvOverrides(cfg, configEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func wrapLoadError(err error, path string) error {
	code := bcperrors.ErrCodeConfigParse
	if _, ok := err.(*os.PathError); ok {
		code = bcperrors.ErrCodeConfigLoad
	}
	return bcperrors.Wrap(err, code, "loading config").WithContext("path", path)
}

// applyEnvOverrides applies BCP_* variables. Process environment wins over
// ~/.bcp/config.env.
func applyEnvOverrides(cfg *Config, configEnv map[string]string) {
	lookup := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(configEnv[key])
	}

	if v := lookup("BCP_MANIFEST_PATH"); v != "" {
		cfg.ManifestPath = v
	}
	if v := lookup("BCP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := lookup("BCP_CARGO"); v != "" {
		cfg.Cargo = v
	}
	if v := lookup("BCP_BENCH"); v != "" {
		cfg.Bench = v
	}
	if v := lookup("BCP_FIXED_FLAGS"); v != "" {
		cfg.FixedFlags = strings.Fields(v)
	}
	if v := lookup("BCP_CATALOG_FILE"); v != "" {
		cfg.CatalogFile = v
	}
	if v := lookup("BCP_EXECUTOR"); v != "" {
		cfg.Executor = strings.ToLower(v)
	}
	if v := lookup("BCP_COMPOSE_FILE"); v != "" {
		cfg.Compose.File = v
	}
	if v := lookup("BCP_COMPOSE_SERVICE"); v != "" {
		cfg.Compose.Service = v
	}
	if v := lookup("BCP_REPORT_FORMATS"); v != "" {
		cfg.Report.Formats = splitCommaList(v)
	}
	if val, ok := parseBool(lookup("BCP_HISTORY")); ok {
		cfg.History.Enabled = val
	}
	if v := lookup("BCP_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := lookup("BCP_METRICS_FILE"); v != "" {
		cfg.Telemetry.MetricsFile = v
	}
	if v := lookup("BCP_TRACE_FILE"); v != "" {
		cfg.Telemetry.TraceFile = v
	}
	if v := lookup("BCP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := lookup("BCP_SERVE_LISTEN"); v != "" {
		cfg.Serve.Listen = v
	}
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseBool(val string) (bool, bool) {
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ManifestPath) == "" {
		return invalid("manifest_path must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return invalid("data_dir must not be empty")
	}
	if strings.TrimSpace(c.Cargo) == "" {
		return invalid("cargo must name the build tool binary")
	}
	if !slices.Contains(validExecutors, c.Executor) {
		return invalid(fmt.Sprintf("invalid executor: %s (valid: %s)", c.Executor, strings.Join(validExecutors, ", ")))
	}
	if c.Executor == ExecutorCompose && strings.TrimSpace(c.Compose.Service) == "" {
		return invalid("compose executor requires compose.service")
	}
	for _, format := range c.Report.Formats {
		if !slices.Contains(validFormats, format) {
			return invalid(fmt.Sprintf("invalid report format: %s (valid: %s)", format, strings.Join(validFormats, ", ")))
		}
	}
	if c.Log.Level != "" && !slices.Contains(validLogLevels, c.Log.Level) {
		return invalid(fmt.Sprintf("invalid log level: %s (valid: %s)", c.Log.Level, strings.Join(validLogLevels, ", ")))
	}
	return nil
}

func invalid(msg string) error {
	return bcperrors.New(bcperrors.ErrCodeConfigInvalid, msg)
}

// HasFormat reports whether the report format is enabled.
func (c *Config) HasFormat(format string) bool {
	return slices.Contains(c.Report.Formats, format)
}

func loadConfigEnvVars() map[string]string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}

	path := filepath.Join(home, ".bcp", "config.env")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	vars := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		vars[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	return vars
}
