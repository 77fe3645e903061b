package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Zero values leave base alone except
// for booleans and lists that the raw document sets explicitly.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	mergeString(&base.ManifestPath, override.ManifestPath)
	mergeString(&base.DataDir, override.DataDir)
	mergeString(&base.Cargo, override.Cargo)
	mergeString(&base.Bench, override.Bench)
	mergeString(&base.CatalogFile, override.CatalogFile)
	if override.Executor != "" {
		base.Executor = strings.ToLower(strings.TrimSpace(override.Executor))
	}
	if fieldSet(raw, "fixed_flags") {
		base.FixedFlags = append([]string{}, override.FixedFlags...)
	}

	mergeString(&base.Compose.File, override.Compose.File)
	mergeString(&base.Compose.Service, override.Compose.Service)

	if fieldSet(raw, "report", "formats") {
		base.Report.Formats = append([]string{}, override.Report.Formats...)
	}

	if fieldSet(raw, "history", "enabled") {
		base.History.Enabled = override.History.Enabled
	}
	mergeString(&base.History.Path, override.History.Path)

	mergeString(&base.Telemetry.MetricsFile, override.Telemetry.MetricsFile)
	mergeString(&base.Telemetry.TraceFile, override.Telemetry.TraceFile)

	if override.Log.Level != "" {
		base.Log.Level = strings.ToLower(strings.TrimSpace(override.Log.Level))
	}
	mergeString(&base.Serve.Listen, override.Serve.Listen)
}

func mergeString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

// fieldSet reports whether the YAML document names the key path, so an
// explicit false or empty list can override a default.
func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
