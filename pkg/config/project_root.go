package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveDataDir returns the absolute directory holding the state file,
// journal and reports. It falls back to the working directory.
func ResolveDataDir(cfg *Config) string {
	if cfg != nil {
		if dir := absPath(cfg.DataDir); dir != "" {
			return dir
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// ResolveManifestPath returns the absolute manifest path, so invocations do
// not depend on the directory cargo runs in.
func ResolveManifestPath(cfg *Config) string {
	if cfg == nil {
		return DefaultManifestPath
	}
	if p := absPath(cfg.ManifestPath); p != "" {
		return p
	}
	return cfg.ManifestPath
}

func absPath(path string) string {
	path = expandHomeDir(path)
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
