package detector

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/strategy"
	"github.com/roach88/metaop/internal/testutil"
)

var relay = oplog.CallSite{File: "signal.py", Line: 42}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
}

func newDetector(t *testing.T, cfgs []strategy.Config, opts ...Option) *Detector {
	t.Helper()
	d, err := New(cfgs, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return d
}

func burstConfig(priority int, extra strategy.Params) strategy.Config {
	params := strategy.Params{"relay_file": relay.File, "relay_line": relay.Line}
	for k, v := range extra {
		params[k] = v
	}
	return strategy.Config{Kind: strategy.KindSourceBurst, Priority: priority, Params: params}
}

func allStrategies() []strategy.Config {
	return []strategy.Config{
		burstConfig(10, nil),
		{Kind: strategy.KindSequenceCount, Priority: 20},
		{Kind: strategy.KindTargetCluster, Priority: 30},
		{Kind: strategy.KindNameSimilarity, Priority: 40},
		{Kind: strategy.KindTimeWindow, Priority: 50, Params: strategy.Params{"window_ms": 25}},
	}
}

func members(groups []oplog.MetaGroup) [][]int {
	out := make([][]int, len(groups))
	for i, g := range groups {
		out[i] = g.Members
	}
	return out
}

func TestNew_SortsByPriority(t *testing.T) {
	d := newDetector(t, []strategy.Config{
		{Name: "late", Kind: strategy.KindSequenceCount, Priority: 5},
		{Name: "early", Kind: strategy.KindNameSimilarity, Priority: 1},
		{Name: "tie", Kind: strategy.KindTargetCluster, Priority: 5},
		{Name: "off", Kind: strategy.KindTimeWindow, Disabled: true},
	})
	assert.Equal(t, []string{"early", "late", "tie"}, d.Strategies())
}

func TestNew_ConfigErrors(t *testing.T) {
	_, err := New([]strategy.Config{{Kind: strategy.KindTimeWindow}})
	require.Error(t, err)
	assert.True(t, strategy.IsConfigError(err))
	assert.Contains(t, err.Error(), "register strategy time_window")

	_, err = New([]strategy.Config{
		{Kind: strategy.KindSequenceCount},
		{Kind: strategy.KindSequenceCount, Priority: 3},
	})
	require.Error(t, err)
	assert.True(t, strategy.IsConfigError(err))
	assert.Contains(t, err.Error(), "duplicate strategy name")

	// Disabled configs are never constructed, so bad params are ignored.
	_, err = New([]strategy.Config{{Kind: strategy.KindTimeWindow, Disabled: true}})
	assert.NoError(t, err)
}

func TestRun_BurstGapBoundary(t *testing.T) {
	d := newDetector(t, []strategy.Config{burstConfig(0, strategy.Params{"max_gap_ms": 50, "min_burst_size": 2})})
	op := testutil.NewOperation("scan").
		Add("get", testutil.Span(0, 1), testutil.From(relay)).
		Add("get", testutil.Span(20, 1), testutil.From(relay)).
		Add("get", testutil.Span(120, 1), testutil.From(relay)).
		Build()

	report, err := d.Run(op)
	require.NoError(t, err)
	require.Len(t, op.MetaGroups, 1)
	assert.Equal(t, []int{1, 2}, op.MetaGroups[0].Members)
	_, grouped := op.GroupOf(3)
	assert.False(t, grouped)
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 3, report.Records)
}

func TestRun_SingleRecordRejection(t *testing.T) {
	d := newDetector(t, []strategy.Config{burstConfig(0, nil)})
	op := testutil.NewOperation("scan").Add("get", testutil.Span(0, 1), testutil.From(relay)).Build()

	_, err := d.Run(op)
	require.NoError(t, err)
	assert.Empty(t, op.MetaGroups)
}

func TestRun_NoiseAbsorption(t *testing.T) {
	d := newDetector(t, []strategy.Config{burstConfig(0, nil)})
	op := testutil.NewOperation("scan").
		Add("get", testutil.Span(0, 1), testutil.From(relay)).
		Add("move", testutil.Span(20, 1), testutil.From(oplog.CallSite{File: "plan.py", Line: 3}), testutil.WithStatus(oplog.StatusError)).
		Add("set", testutil.Span(40, 1), testutil.From(relay)).
		Build()

	_, err := d.Run(op)
	require.NoError(t, err)
	require.Len(t, op.MetaGroups, 1)

	g := op.MetaGroups[0]
	assert.Equal(t, []int{1, 2, 3}, g.Members)
	assert.Equal(t, 2, g.SuccessCount)
	assert.Equal(t, 1, g.ErrorCount)
	assert.True(t, g.Timed)
	assert.InDelta(t, 0.0, g.StartTime, 1e-12)
	assert.InDelta(t, 0.041, g.EndTime, 1e-12)
	assert.Contains(t, g.Description, "3 operations (1 noise)")
}

func TestRun_NameSimilarityScenario(t *testing.T) {
	d := newDetector(t, []strategy.Config{{
		Kind:   strategy.KindNameSimilarity,
		Params: strategy.Params{"prefix_length": 3},
	}})
	op := testutil.NewOperation("io").Add("GET_X").Add("GET_Y").Add("SET_Z").Build()

	report, err := d.Run(op)
	require.NoError(t, err)
	require.Len(t, op.MetaGroups, 1)
	assert.Equal(t, []int{1, 2}, op.MetaGroups[0].Members)
	assert.Equal(t, 1, report.Discarded)

	// Untimed groups report zero duration.
	assert.False(t, op.MetaGroups[0].Timed)
	assert.Zero(t, op.MetaGroups[0].Duration())
}

func TestRun_PriorityConflict(t *testing.T) {
	op := func() *oplog.Operation {
		return testutil.NewOperation("io").
			Add("GET_X", testutil.At(0)).
			Add("GET_Y", testutil.At(5)).
			Add("SET_A", testutil.At(500)).
			Add("SET_B", testutil.At(1000)).
			Build()
	}
	window := strategy.Config{Kind: strategy.KindTimeWindow, Params: strategy.Params{"window_ms": 100}}
	names := strategy.Config{Kind: strategy.KindNameSimilarity}

	t.Run("time window first", func(t *testing.T) {
		window.Priority, names.Priority = 1, 2
		o := op()
		_, err := newDetector(t, []strategy.Config{window, names}).Run(o)
		require.NoError(t, err)
		require.Len(t, o.MetaGroups, 1)
		assert.Equal(t, "time_window", o.MetaGroups[0].Strategy)
		assert.Equal(t, []int{1, 2}, o.MetaGroups[0].Members)
	})

	t.Run("name similarity first", func(t *testing.T) {
		window.Priority, names.Priority = 2, 1
		o := op()
		_, err := newDetector(t, []strategy.Config{window, names}).Run(o)
		require.NoError(t, err)
		assert.Equal(t, [][]int{{1, 2}, {3, 4}}, members(o.MetaGroups))
		for _, g := range o.MetaGroups {
			assert.Equal(t, "name_similarity", g.Strategy)
		}
	})
}

func TestRun_UnclaimedRecordsFallThrough(t *testing.T) {
	d := newDetector(t, []strategy.Config{
		{Kind: strategy.KindTimeWindow, Priority: 1, Params: strategy.Params{"window_ms": 100}},
		{Kind: strategy.KindSequenceCount, Priority: 2, MinGroupSize: 1, Params: strategy.Params{"min_repeat": 2}},
	})
	op := testutil.NewOperation("mixed").
		Add("poll", testutil.At(0)).
		Add("poll", testutil.At(10)).
		Add("untimed").
		Add("untimed").
		Build()

	_, err := d.Run(op)
	require.NoError(t, err)
	require.Len(t, op.MetaGroups, 2)
	g, ok := op.GroupOf(4)
	require.True(t, ok)
	assert.Equal(t, "sequence_count", g.Strategy)
	// Record 3 opened the run; the cursor never saw records 1 and 2.
	assert.Equal(t, []int{4}, g.Members)
}

func TestRun_MinGroupSizePerStrategy(t *testing.T) {
	d := newDetector(t, []strategy.Config{{
		Kind:         strategy.KindTargetCluster,
		MinGroupSize: 3,
	}})
	op := testutil.NewOperation("move").
		Add("set", testutil.On("a")).Add("set", testutil.On("a")).
		Add("set", testutil.On("b")).Add("set", testutil.On("c")).
		Add("set", testutil.On("d")).Add("set", testutil.On("d")).Add("set", testutil.On("d")).
		Build()

	report, err := d.Run(op)
	require.NoError(t, err)
	for _, g := range op.MetaGroups {
		assert.GreaterOrEqual(t, g.Size(), 3)
	}
	assert.Equal(t, report.Groups, len(op.MetaGroups))
	assert.Positive(t, report.Discarded)
}

func TestRun_UnsortedInputIsProcessedInSeqOrder(t *testing.T) {
	d := newDetector(t, []strategy.Config{{Kind: strategy.KindSequenceCount}})
	op := testutil.NewOperation("poll").Repeat(4, "read", 0, 10, 1).Build()
	slices.Reverse(op.SubOperations)

	_, err := d.Run(op)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{3, 4}}, members(op.MetaGroups))
	assert.Equal(t, 4, op.SubOperations[0].Seq, "input slice order is preserved")
}

// randomOperation builds a deterministic but irregular operation that
// triggers every built-in strategy.
func randomOperation(seed uint64, n int) *oplog.Operation {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	names := []string{"get", "set", "update", "GET_pos", "GET_vel", "trigger"}
	targets := []string{"", "motor", "det", "shutter"}
	sites := []oplog.CallSite{relay, {File: "plan.py", Line: 3}}
	statuses := []oplog.Status{oplog.StatusOK, oplog.StatusOK, oplog.StatusError}

	b := testutil.NewOperation("random").Frame(oplog.CallSite{File: "scan.py", Line: 1}, 0, 0, -1)
	at := 0.0
	for i := 0; i < n; i++ {
		at += float64(rng.IntN(40))
		opts := []testutil.RecordOption{
			testutil.On(targets[rng.IntN(len(targets))]),
			testutil.From(sites[rng.IntN(len(sites))]),
			testutil.WithStatus(statuses[rng.IntN(len(statuses))]),
		}
		if rng.IntN(8) > 0 {
			opts = append(opts, testutil.Span(at, float64(rng.IntN(4))))
		}
		b.Add(names[rng.IntN(len(names))], opts...)
	}
	return b.Build()
}

func TestRun_Properties(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		op := randomOperation(seed, 60)
		d := newDetector(t, allStrategies())
		_, err := d.Run(op)
		require.NoError(t, err)

		minSize := map[string]int{}
		for _, cfg := range allStrategies() {
			minSize[cfg.DisplayName()] = strategy.DefaultMinGroupSize
		}

		seen := map[int]string{}
		for i, g := range op.MetaGroups {
			// Partition: no record appears in two groups.
			for _, seq := range g.Members {
				prev, dup := seen[seq]
				require.False(t, dup, "seed %d: seq %d in %s and %s", seed, seq, prev, g.ID)
				seen[seq] = g.ID
			}
			// Minimum size.
			assert.GreaterOrEqual(t, g.Size(), minSize[g.Strategy], "seed %d group %s", seed, g.ID)
			// Ordering.
			if i > 0 {
				assert.LessOrEqual(t, op.MetaGroups[i-1].StartTime, g.StartTime, "seed %d", seed)
			}
			assert.Equal(t, g.Size(), g.SuccessCount+g.ErrorCount, "seed %d group %s", seed, g.ID)
			assert.NotEmpty(t, g.Description)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	op := randomOperation(7, 80)

	d := newDetector(t, allStrategies())
	_, err := d.Run(op)
	require.NoError(t, err)
	first := slices.Clone(op.MetaGroups)
	require.NotEmpty(t, first)

	// Same detector, rerun: replaced, not appended.
	_, err = d.Run(op)
	require.NoError(t, err)
	assert.Equal(t, first, op.MetaGroups)

	// Fresh detector.
	_, err = newDetector(t, allStrategies()).Run(op)
	require.NoError(t, err)
	assert.Equal(t, first, op.MetaGroups)
}

func TestRun_InvalidOperation(t *testing.T) {
	d := newDetector(t, allStrategies())

	_, err := d.Run(nil)
	assert.True(t, IsInvalidOperation(err))

	op := &oplog.Operation{SubOperations: []oplog.SubOperation{{Seq: 1}, {Seq: 1}}}
	_, err = d.Run(op)
	assert.True(t, IsInvalidOperation(err))
	assert.ErrorIs(t, err, oplog.ErrDuplicateSeq)
	assert.Nil(t, op.MetaGroups)
}

// faultyStrategy claims every record and misbehaves on demand.
type faultyStrategy struct {
	name        string
	priority    int
	panicOn     int
	failOn      int
	describeErr error
	resets      int
}

func (f *faultyStrategy) Name() string       { return f.name }
func (f *faultyStrategy) Kind() strategy.Kind { return "faulty" }
func (f *faultyStrategy) Priority() int      { return f.priority }
func (f *faultyStrategy) MinGroupSize() int  { return 1 }
func (f *faultyStrategy) Reset()             { f.resets++ }

func (f *faultyStrategy) Detect(rec oplog.SubOperation, _ *strategy.Pass) (string, bool, error) {
	switch rec.Seq {
	case f.panicOn:
		panic("cursor corrupted")
	case f.failOn:
		return "", false, errors.New("lookup failed")
	}
	return f.name + "#1", true, nil
}

func (f *faultyStrategy) Describe(string, []oplog.SubOperation) (string, error) {
	if f.describeErr != nil {
		return "", f.describeErr
	}
	return "faulty group", nil
}

func TestRun_RecoversStrategyFailures(t *testing.T) {
	var logs bytes.Buffer
	faulty := &faultyStrategy{name: "faulty", panicOn: 1, failOn: 2}
	d, err := New(
		[]strategy.Config{{Kind: strategy.KindSequenceCount, Priority: 10, MinGroupSize: 1, Params: strategy.Params{"min_repeat": 2}}},
		WithStrategy(faulty),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"faulty", "sequence_count"}, d.Strategies())

	op := testutil.NewOperation("x").Add("read").Add("read").Add("read").Build()
	report, err := d.Run(op)
	require.NoError(t, err)

	require.Len(t, report.Errors, 2)
	assert.True(t, IsPanicError(report.Errors[0]))
	assert.True(t, IsDetectError(report.Errors[1]))
	assert.Contains(t, report.Errors[1].Error(), "strategy=faulty, seq=2")
	assert.Contains(t, logs.String(), "strategy detect failed")

	// Records 1 and 2 fell through to sequence_count; 3 was claimed by faulty.
	g, ok := op.GroupOf(3)
	require.True(t, ok)
	assert.Equal(t, "faulty", g.Strategy)
	g, ok = op.GroupOf(2)
	require.True(t, ok)
	assert.Equal(t, "sequence_count", g.Strategy)
	assert.Equal(t, 1, faulty.resets)
}

func TestRun_DescribeFailureKeepsGroup(t *testing.T) {
	boom := errors.New("boom")
	d := newDetector(t, nil, WithStrategy(&faultyStrategy{name: "faulty", describeErr: boom}))
	op := testutil.NewOperation("x").Add("a").Add("b").Build()

	report, err := d.Run(op)
	require.NoError(t, err)
	require.Len(t, op.MetaGroups, 1)
	assert.Equal(t, "faulty group (2 operations)", op.MetaGroups[0].Description)
	require.Len(t, report.Errors, 1)
	assert.True(t, IsDescribeError(report.Errors[0]))
	assert.ErrorIs(t, report.Errors[0], boom)
}

func TestRun_CustomRegistry(t *testing.T) {
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register("faulty", func(cfg strategy.Config) (strategy.Strategy, error) {
		return &faultyStrategy{name: cfg.DisplayName(), priority: cfg.Priority}, nil
	}))

	d := newDetector(t, []strategy.Config{{Name: "custom", Kind: "faulty"}}, WithRegistry(reg))
	op := testutil.NewOperation("x").Add("a").Build()
	_, err := d.Run(op)
	require.NoError(t, err)
	require.Len(t, op.MetaGroups, 1)
	assert.Equal(t, "custom#1", op.MetaGroups[0].ID)

	_, err = New([]strategy.Config{{Kind: "faulty"}})
	assert.True(t, strategy.IsConfigError(err))
}

// claimStrategy claims a fixed set of records into one group.
type claimStrategy struct {
	seqs []int
}

func (c *claimStrategy) Name() string       { return "claim" }
func (c *claimStrategy) Kind() strategy.Kind { return "claim" }
func (c *claimStrategy) Priority() int      { return 0 }
func (c *claimStrategy) MinGroupSize() int  { return 1 }
func (c *claimStrategy) Reset()             {}

func (c *claimStrategy) Detect(rec oplog.SubOperation, _ *strategy.Pass) (string, bool, error) {
	return "claim#1", slices.Contains(c.seqs, rec.Seq), nil
}

func (c *claimStrategy) Describe(string, []oplog.SubOperation) (string, error) {
	return "claimed", nil
}

func relayBurstOp() *oplog.Operation {
	ui := oplog.CallSite{File: "ui.py", Line: 7}
	return testutil.NewOperation("poll").
		Add("get", testutil.Span(0, 1), testutil.From(relay), testutil.On("dev")).
		Add("log", testutil.Span(10, 1), testutil.From(ui)).
		Add("log", testutil.Span(20, 1), testutil.From(ui)).
		Add("set", testutil.Span(40, 1), testutil.From(relay), testutil.On("dev")).
		Build()
}

func TestRun_BurstStarvedByHigherPriority(t *testing.T) {
	d, err := New([]strategy.Config{burstConfig(10, nil)},
		WithStrategy(&claimStrategy{seqs: []int{1, 4}}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	op := relayBurstOp()
	report, err := d.Run(op)
	require.NoError(t, err)

	// The burst received only its noise records, so it is dropped.
	require.Len(t, op.MetaGroups, 1)
	assert.Equal(t, "claim", op.MetaGroups[0].Strategy)
	assert.Equal(t, []int{1, 4}, op.MetaGroups[0].Members)
	assert.Equal(t, 1, report.Discarded)
	assert.Empty(t, report.Errors)
}

func TestRun_BurstKeptWhenEnoughEligibleRemain(t *testing.T) {
	d, err := New([]strategy.Config{burstConfig(10, strategy.Params{"max_gap_ms": 30})},
		WithStrategy(&claimStrategy{seqs: []int{1}}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	op := testutil.NewOperation("poll").
		Add("get", testutil.Span(0, 1), testutil.From(relay)).
		Add("set", testutil.Span(10, 1), testutil.From(relay)).
		Add("log", testutil.Span(15, 1), testutil.From(oplog.CallSite{File: "ui.py", Line: 7})).
		Add("get", testutil.Span(20, 1), testutil.From(relay)).
		Build()
	report, err := d.Run(op)
	require.NoError(t, err)

	require.Len(t, op.MetaGroups, 2)
	burst := op.MetaGroups[1]
	assert.Equal(t, "source_burst", burst.Strategy)
	assert.Equal(t, []int{2, 3, 4}, burst.Members)
	assert.Equal(t, "get/set exchange: 3 operations (1 noise) in 11.0ms from signal.py:42 (relay)", burst.Description)
	assert.Zero(t, report.Discarded)
}

// rejectingFilter panics in KeepGroup.
type rejectingFilter struct {
	claimStrategy
}

func (r *rejectingFilter) KeepGroup(string, []oplog.SubOperation) bool {
	panic("filter broken")
}

func TestRun_GroupFilterPanicDiscardsGroup(t *testing.T) {
	d, err := New(nil,
		WithStrategy(&rejectingFilter{claimStrategy{seqs: []int{1, 2}}}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	op := relayBurstOp()
	report, err := d.Run(op)
	require.NoError(t, err)

	assert.Empty(t, op.MetaGroups)
	assert.Equal(t, 1, report.Discarded)
	require.Len(t, report.Errors, 1)
	assert.True(t, IsPanicError(report.Errors[0]))
}
