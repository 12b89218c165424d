package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/contextcore/contextd/internal/core"
	"gopkg.in/yaml.v3"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry, and enforces that at
// most one embedder backend is configured.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	// The engine resolves a single "embedder" service, so configuring two
	// embedder backends would make one of them clobber the other.
	var embedders []string
	for id := range cfg.Modules {
		if strings.HasPrefix(id, "embedder.") {
			embedders = append(embedders, id)
		}
	}
	if len(embedders) > 1 {
		sort.Strings(embedders)
		errs = append(errs, fmt.Errorf("config: at most one embedder module may be configured, got %s", strings.Join(embedders, ", ")))
	}

	if _, ok := cfg.Modules["context.engine"]; ok {
		for _, ns := range []string{"store.", "vector.", "embedder."} {
			if !hasPrefix(cfg.Modules, ns) {
				errs = append(errs, fmt.Errorf("config: context.engine requires a %s* module to be configured", ns))
			}
		}
	}

	return errors.Join(errs...)
}

func hasPrefix(modules map[string]yaml.Node, prefix string) bool {
	for id := range modules {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}
