package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/metaop/internal/oplog"
)

// Snapshot captures the detection outcome of a scenario.
// Serialized with oplog.MarshalCanonical for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Groups       []oplog.MetaGroup
	Ungrouped    []int
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization, which only handles maps, slices and primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	groups := make([]any, len(s.Groups))
	for i, g := range s.Groups {
		members := make([]any, len(g.Members))
		for j, m := range g.Members {
			members[j] = m
		}
		groups[i] = map[string]any{
			"id":            g.ID,
			"strategy":      g.Strategy,
			"description":   g.Description,
			"members":       members,
			"start_time":    g.StartTime,
			"end_time":      g.EndTime,
			"timed":         g.Timed,
			"success_count": g.SuccessCount,
			"error_count":   g.ErrorCount,
		}
	}

	ungrouped := make([]any, len(s.Ungrouped))
	for i, seq := range s.Ungrouped {
		ungrouped[i] = seq
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"groups":        groups,
		"ungrouped":     ungrouped,
	}
}

// MarshalSnapshot renders the canonical JSON snapshot of a result.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		ScenarioName: name,
		Groups:       result.Groups,
		Ungrouped:    result.Ungrouped,
	}
	return oplog.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. Test failure (via
// goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
