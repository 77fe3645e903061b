// Package paths names the files bcp keeps in its data directory.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvLogDir relocates build-tool output logs away from the data directory.
const EnvLogDir = "BCP_LOG_DIR"

// File names inside the data directory.
const (
	StateFile   = "bcp-state.json"
	HistoryFile = "bcp-history.db"
	ReportBase  = "bcp-report"
)

// StatePath is the sweep state file.
func StatePath(dataDir string) string {
	return filepath.Join(dataDir, StateFile)
}

// ReportPath is the report file with the given extension, e.g. "html".
func ReportPath(dataDir, ext string) string {
	return filepath.Join(dataDir, ReportBase+"."+strings.TrimPrefix(ext, "."))
}

// HistoryPath is the archive database. An explicit path wins.
func HistoryPath(dataDir, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return filepath.Clean(expandHomePath(explicit))
	}
	return filepath.Join(dataDir, HistoryFile)
}

// LogsDir is where build-tool output goes: $BCP_LOG_DIR when set (relative
// values are anchored at dataDir), otherwise <dataDir>/.bcp/logs.
func LogsDir(dataDir string) string {
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		dir = filepath.Clean(expandHomePath(dir))
		if filepath.IsAbs(dir) || strings.TrimSpace(dataDir) == "" {
			return dir
		}
		return filepath.Join(dataDir, dir)
	}
	return filepath.Join(dataDir, ".bcp", "logs")
}

func expandHomePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}
