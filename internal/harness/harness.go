package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/metaop/internal/config"
	"github.com/roach88/metaop/internal/detector"
	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/store"
	"github.com/roach88/metaop/internal/strategy"
	"github.com/roach88/metaop/internal/testutil"
)

// Run executes a scenario and evaluates its assertions.
//
// The returned error is non-nil only when the scenario cannot run at all
// (bad configuration, store failure). Assertion failures are reported in
// Result.Errors with Result.Pass set to false.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context for store access.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfgs, err := scenarioStrategies(scenario)
	if err != nil {
		return nil, err
	}

	det, err := detector.New(cfgs, detector.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	// Detection only replaces MetaGroups; a shallow copy keeps the
	// scenario reusable.
	op := scenario.Operation
	op.SubOperations = slices.Clone(scenario.Operation.SubOperations)
	op.MetaGroups = nil

	result := NewResult()
	if scenario.Persist {
		result.Report, err = runPersisted(ctx, scenario.Name, det, &op)
	} else {
		result.Report, err = det.RunContext(ctx, &op)
	}
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result.Groups = append(result.Groups, op.MetaGroups...)
	result.Ungrouped = ungrouped(&op)

	for _, msg := range EvaluateAssertions(result.Groups, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// runPersisted writes op to an in-memory store, detects on the stored copy,
// replaces the stored groups and reads them back into op.
func runPersisted(ctx context.Context, name string, det *detector.Detector, op *oplog.Operation) (*detector.Report, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, err
	}
	defer st.Close()

	id, _, err := st.WriteOperation(ctx, op, testutil.NewFixedIDGenerator("scenario-"+name))
	if err != nil {
		return nil, err
	}
	stored, err := st.ReadOperation(ctx, id)
	if err != nil {
		return nil, err
	}

	report, err := det.RunContext(ctx, stored)
	if err != nil {
		return nil, err
	}
	if err := st.ReplaceMetaGroups(ctx, id, stored.MetaGroups); err != nil {
		return nil, err
	}
	if op.MetaGroups, err = st.ReadMetaGroups(ctx, id); err != nil {
		return nil, err
	}
	return report, nil
}

// scenarioStrategies resolves the strategy set: config file, inline
// strategies, or the built-in defaults.
func scenarioStrategies(scenario *Scenario) ([]strategy.Config, error) {
	switch {
	case scenario.Config != "":
		cfg, err := config.Load(scenario.Config)
		if err != nil {
			return nil, err
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return cfg.Strategies(), nil
	case len(scenario.Strategies) > 0:
		return scenario.Strategies, nil
	default:
		return config.Default().Strategies(), nil
	}
}

// ungrouped returns the sequence indices of records no group claimed.
func ungrouped(op *oplog.Operation) []int {
	out := []int{}
	for _, rec := range op.SubOperations {
		if _, ok := op.GroupOf(rec.Seq); !ok {
			out = append(out, rec.Seq)
		}
	}
	slices.Sort(out)
	return out
}
