package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/strategy"
)

// Scenario defines a detector conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is an optional path to a strategy configuration file.
	// Relative paths are resolved against the scenario file.
	Config string `yaml:"config,omitempty"`

	// Strategies configures the detector inline. Mutually exclusive with
	// Config.
	Strategies []strategy.Config `yaml:"strategies,omitempty"`

	// Persist stores the operation in an in-memory database before
	// detection and reads the groups back afterwards.
	Persist bool `yaml:"persist,omitempty"`

	// Operation is the record detection runs on.
	Operation oplog.Operation `yaml:"operation"`

	// Assertions validate the detected groups.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the detected meta groups.
type Assertion struct {
	// Type specifies the assertion type:
	// - "group_count": exactly Count groups (of Strategy, if set)
	// - "group_members": a group with exactly Members exists (of Strategy, if set)
	// - "ungrouped": each seq in Members belongs to no group
	// - "description_contains": the group containing Seq has Text in its description
	Type string `yaml:"type"`

	// Strategy restricts group_count and group_members to one strategy name.
	Strategy string `yaml:"strategy,omitempty"`

	// Count is the expected number of groups (group_count).
	Count int `yaml:"count,omitempty"`

	// Members lists sequence indices (group_members, ungrouped).
	Members []int `yaml:"members,omitempty"`

	// Seq selects a group by one of its members (description_contains).
	Seq int `yaml:"seq,omitempty"`

	// Text is the expected description substring (description_contains).
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertGroupCount          = "group_count"
	AssertGroupMembers        = "group_members"
	AssertUngrouped           = "ungrouped"
	AssertDescriptionContains = "description_contains"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Config != "" && !filepath.IsAbs(scenario.Config) {
		scenario.Config = filepath.Join(filepath.Dir(path), scenario.Config)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Config != "" && len(s.Strategies) > 0 {
		return fmt.Errorf("config and strategies are mutually exclusive")
	}

	if s.Config != "" {
		if _, err := os.Stat(s.Config); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", s.Config)
		}
	}

	if len(s.Operation.SubOperations) == 0 {
		return fmt.Errorf("operation.sub_operations is required and must be non-empty")
	}

	if err := oplog.Validate(&s.Operation); err != nil {
		return fmt.Errorf("operation: %w", err)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertGroupCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be >= 0 for group_count", index)
		}
	case AssertGroupMembers:
		if len(a.Members) == 0 {
			return fmt.Errorf("assertions[%d]: members list is required for group_members", index)
		}
	case AssertUngrouped:
		if len(a.Members) == 0 {
			return fmt.Errorf("assertions[%d]: members list is required for ungrouped", index)
		}
	case AssertDescriptionContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for description_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}

	return nil
}
