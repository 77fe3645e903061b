package knob

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
)

// DefaultCatalog returns the cargo release-profile knobs.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			Path:    "profile.release.opt-level",
			EnvVar:  "CARGO_PROFILE_RELEASE_OPT_LEVEL",
			Values:  []string{"0", "1", "2", "3"},
			Default: "3",
		},
		{
			Path:    "profile.release.debug",
			EnvVar:  "CARGO_PROFILE_RELEASE_DEBUG",
			Values:  []string{"false", "1", "true"},
			Default: "true",
		},
		{
			Path:    "profile.release.rpath",
			EnvVar:  "CARGO_PROFILE_RELEASE_RPATH",
			Values:  []string{},
			Default: "false",
		},
		{
			Path:    "profile.release.lto",
			EnvVar:  "CARGO_PROFILE_RELEASE_LTO",
			Values:  []string{"false", "thin", "true"},
			Default: "true",
		},
		{
			Path:    "profile.release.debug-assertions",
			EnvVar:  "CARGO_PROFILE_RELEASE_DEBUG_ASSERTIONS",
			Values:  []string{"false", "true"},
			Default: "true",
		},
		{
			Path:    "profile.release.codegen-units",
			EnvVar:  "CARGO_PROFILE_RELEASE_CODEGEN_UNITS",
			Values:  []string{"1", "4", "16"},
			Default: "1",
		},
		{
			Path:    "profile.release.panic",
			EnvVar:  "CARGO_PROFILE_RELEASE_PANIC",
			Values:  []string{},
			Default: "unwind",
		},
		{
			Path:    "profile.release.incremental",
			EnvVar:  "CARGO_PROFILE_RELEASE_INCREMENTAL",
			Values:  []string{"false", "true"},
			Default: "false",
		},
		{
			Path:    "profile.release.overflow-checks",
			EnvVar:  "CARGO_PROFILE_RELEASE_OVERFLOW_CHECKS",
			Values:  []string{"false", "true"},
			Default: "true",
		},
	}
}

type catalogFile struct {
	Knobs []Definition `yaml:"knobs"`
}

// LoadCatalog reads a YAML catalog of the form
//
//	knobs:
//	  - path: profile.release.opt-level
//	    env_var: CARGO_PROFILE_RELEASE_OPT_LEVEL
//	    values: ["0", "1", "2", "3"]
//	    default: "3"
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bcperrors.Wrap(err, bcperrors.ErrCodeConfigLoad, "read catalog").
			WithContext("path", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(data []byte) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, bcperrors.Wrap(err, bcperrors.ErrCodeConfigParse, "parsing catalog YAML")
	}
	if len(file.Knobs) == 0 {
		return nil, bcperrors.New(bcperrors.ErrCodeCatalogInvalid, "catalog lists no knobs")
	}
	catalog := Catalog(file.Knobs)
	for i := range catalog {
		if catalog[i].Values == nil {
			catalog[i].Values = []string{}
		}
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return catalog, nil
}
