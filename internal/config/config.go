// Package config loads detector strategy configuration from CUE, JSON or
// YAML files and validates it against an embedded CUE schema.
package config

import (
	"fmt"

	"github.com/roach88/metaop/internal/strategy"
)

// Strategy is one strategy entry as written in a configuration file.
type Strategy struct {
	Name         string          `json:"name,omitempty" yaml:"name,omitempty"`
	Kind         strategy.Kind   `json:"kind" yaml:"kind"`
	Priority     int             `json:"priority" yaml:"priority"`
	Enabled      bool            `json:"enabled" yaml:"enabled"`
	MinGroupSize int             `json:"min_group_size" yaml:"min_group_size"`
	Params       strategy.Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// Config is a loaded, schema-checked configuration file.
type Config struct {
	// Source is the file the configuration was loaded from; empty for
	// Default().
	Source string `json:"-" yaml:"-"`

	// Entries holds the strategies in file order.
	Entries []Strategy `json:"strategies" yaml:"strategies"`
}

// Strategies converts the entries to detector strategy configurations,
// preserving file order. Disabled entries are kept and marked Disabled.
func (c *Config) Strategies() []strategy.Config {
	out := make([]strategy.Config, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = strategy.Config{
			Name:         e.Name,
			Kind:         e.Kind,
			Priority:     e.Priority,
			Disabled:     !e.Enabled,
			MinGroupSize: e.MinGroupSize,
			Params:       e.Params,
		}
	}
	return out
}

// Validate constructs every enabled strategy and reports all parameter
// errors the schema cannot express (regex syntax, cross-parameter limits,
// duplicate names).
func (c *Config) Validate() []error {
	var errs []error
	seen := make(map[string]int)
	for i, cfg := range c.Strategies() {
		name := cfg.DisplayName()
		if prev, dup := seen[name]; dup {
			errs = append(errs, &LoadError{
				Code:    ErrCodeDuplicateName,
				Message: fmt.Sprintf("strategies[%d]: name %q already used by strategies[%d]", i, name, prev),
			})
			continue
		}
		seen[name] = i
		if cfg.Disabled {
			continue
		}
		if _, err := strategy.New(cfg); err != nil {
			errs = append(errs, &LoadError{
				Code:    ErrCodeInvalidStrategy,
				Message: fmt.Sprintf("strategies[%d]: %v", i, err),
			})
		}
	}
	return errs
}

// Default returns the built-in strategy set used when no configuration
// file is given. source_burst needs a relay call-site and is therefore
// never part of the defaults; time_window is present but disabled since
// it claims every timed record.
func Default() *Config {
	return &Config{Entries: []Strategy{
		{
			Kind:         strategy.KindSequenceCount,
			Priority:     10,
			Enabled:      true,
			MinGroupSize: strategy.DefaultMinGroupSize,
			Params:       strategy.Params{"min_repeat": 3},
		},
		{
			Kind:         strategy.KindTargetCluster,
			Priority:     20,
			Enabled:      true,
			MinGroupSize: strategy.DefaultMinGroupSize,
			Params:       strategy.Params{"max_gap": 1},
		},
		{
			Kind:         strategy.KindNameSimilarity,
			Priority:     30,
			Enabled:      true,
			MinGroupSize: strategy.DefaultMinGroupSize,
			Params:       strategy.Params{"prefix_length": 3},
		},
		{
			Kind:         strategy.KindTimeWindow,
			Priority:     40,
			Enabled:      false,
			MinGroupSize: strategy.DefaultMinGroupSize,
			Params:       strategy.Params{"window_ms": 50},
		},
	}}
}
