package plan

import (
	"sort"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
	"github.com/odvcencio/bcp/pkg/knob"
)

// Config is a complete configuration: one override per baseline knob, in
// baseline order.
type Config []knob.Override

// Merge applies overrides on top of a copy of the baseline. An override whose
// knob is not in the baseline, or whose definition disagrees with the
// baseline's, is an internal-consistency fault.
func Merge(baseline Baseline, overrides []knob.Override) (Config, error) {
	config := make(Config, len(baseline))
	copy(config, baseline)

	for _, o := range overrides {
		i := config.index(o.Knob.Path)
		if i < 0 {
			return nil, bcperrors.New(bcperrors.ErrCodeInvariant, "override references a knob missing from the baseline").
				WithContext("knob", o.Knob.Path)
		}
		if !config[i].Knob.Equal(o.Knob) {
			return nil, bcperrors.New(bcperrors.ErrCodeInvariant, "override knob definition disagrees with the baseline").
				WithContext("knob", o.Knob.Path)
		}
		config[i].Value = o.Value
	}
	return config, nil
}

func (c Config) index(path string) int {
	for i, o := range c {
		if o.Knob.Path == path {
			return i
		}
	}
	return -1
}

// Value returns the configured value of the knob at path.
func (c Config) Value(path string) (string, bool) {
	if i := c.index(path); i >= 0 {
		return c[i].Value, true
	}
	return "", false
}

// Environment projects the config onto the env vars the build tool reads.
// When two knobs share an env var the later one in config order wins.
func (c Config) Environment() map[string]string {
	env := make(map[string]string, len(c))
	for _, o := range c {
		env[o.Knob.EnvVar] = o.Value
	}
	return env
}

// EnvList renders an environment map as sorted KEY=VALUE pairs.
func EnvList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + env[k]
	}
	return out
}
