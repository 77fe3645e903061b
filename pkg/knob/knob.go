// Package knob describes the tunable build-profile options a sweep explores.
package knob

import (
	"fmt"
	"slices"
	"strings"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
)

// Definition is a single tunable knob. Identity is Path; two definitions are
// equal only when every field matches.
type Definition struct {
	Path    string   `json:"path" yaml:"path"`
	EnvVar  string   `json:"env_var" yaml:"env_var"`
	Values  []string `json:"values" yaml:"values"`
	Default string   `json:"default" yaml:"default"`
}

// Equal reports whether d and other are the same knob with the same settings.
func (d Definition) Equal(other Definition) bool {
	return d.Path == other.Path &&
		d.EnvVar == other.EnvVar &&
		d.Default == other.Default &&
		slices.Equal(d.Values, other.Values)
}

// Name returns the last segment of the dotted path, e.g. "opt-level".
func (d Definition) Name() string {
	if i := strings.LastIndexByte(d.Path, '.'); i >= 0 {
		return d.Path[i+1:]
	}
	return d.Path
}

// Override pins a knob to a value. The value is not checked against
// Definition.Values; the catalog is trusted.
type Override struct {
	Knob  Definition `json:"knob"`
	Value string     `json:"value"`
}

// Equal reports whether both overrides pin the same knob to the same value.
func (o Override) Equal(other Override) bool {
	return o.Value == other.Value && o.Knob.Equal(other.Knob)
}

func (o Override) String() string {
	return o.Knob.Name() + "=" + o.Value
}

// Catalog is an ordered list of knob definitions.
type Catalog []Definition

// Validate checks the structural requirements a plan relies on: every knob has
// a path and an env var, and paths are unique.
func (c Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c))
	for i, def := range c {
		if strings.TrimSpace(def.Path) == "" {
			return bcperrors.Newf(bcperrors.ErrCodeCatalogInvalid, "knob %d has no path", i)
		}
		if strings.TrimSpace(def.EnvVar) == "" {
			return bcperrors.Newf(bcperrors.ErrCodeCatalogInvalid, "knob %s has no env var", def.Path)
		}
		if _, dup := seen[def.Path]; dup {
			return bcperrors.Newf(bcperrors.ErrCodeCatalogInvalid, "duplicate knob %s", def.Path)
		}
		seen[def.Path] = struct{}{}
	}
	return nil
}

// Lookup returns the definition with the given path.
func (c Catalog) Lookup(path string) (Definition, bool) {
	for _, def := range c {
		if def.Path == path {
			return def, true
		}
	}
	return Definition{}, false
}

// Equal reports whether two catalogs list the same knobs in the same order.
func (c Catalog) Equal(other Catalog) bool {
	return slices.EqualFunc(c, other, Definition.Equal)
}

// Describe renders one line per knob for display.
func (c Catalog) Describe() string {
	var b strings.Builder
	for _, def := range c {
		values := "-"
		if len(def.Values) > 0 {
			values = strings.Join(def.Values, ", ")
		}
		fmt.Fprintf(&b, "%s (%s) default=%s values=[%s]\n", def.Path, def.EnvVar, def.Default, values)
	}
	return b.String()
}
