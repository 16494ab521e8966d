package detector

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/strategy"
)

// Detector orchestrates strategies over one operation at a time.
//
// Thread-safety: a Detector is NOT safe for concurrent use. Its strategies
// hold cursor state that Run resets and advances.
//
// INVARIANTS:
//   - strategies are sorted by ascending priority; ties keep registration order
//   - strategy names are unique
//   - every record ends in at most one meta group
type Detector struct {
	strategies []strategy.Strategy
	logger     *slog.Logger
	registry   *strategy.Registry
	telemetry  *Telemetry
	custom     []strategy.Strategy
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger used for per-record diagnostics.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRegistry resolves strategy kinds through r instead of the built-in
// factory, allowing custom kinds.
func WithRegistry(r *strategy.Registry) Option {
	return func(d *Detector) {
		d.registry = r
	}
}

// WithStrategy adds an already constructed strategy. The instance is owned
// by the Detector from then on; detectors built by a Pool cannot use it.
func WithStrategy(s strategy.Strategy) Option {
	return func(d *Detector) {
		if s != nil {
			d.custom = append(d.custom, s)
		}
	}
}

// WithTelemetry records metrics for every Run.
func WithTelemetry(t *Telemetry) Option {
	return func(d *Detector) {
		d.telemetry = t
	}
}

// New constructs a Detector from strategy configurations.
//
// Disabled configurations are skipped without construction. Any invalid
// configuration (including a duplicate strategy name) fails the whole
// Detector with a *strategy.ConfigError.
func New(cfgs []strategy.Config, opts ...Option) (*Detector, error) {
	d := &Detector{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}

	all := make([]strategy.Strategy, 0, len(cfgs)+len(d.custom))
	for _, cfg := range cfgs {
		if cfg.Disabled {
			d.logger.Debug("strategy disabled, skipping", "strategy", cfg.DisplayName())
			continue
		}
		s, err := d.construct(cfg)
		if err != nil {
			return nil, fmt.Errorf("register strategy %s: %w", cfg.DisplayName(), err)
		}
		all = append(all, s)
	}
	all = append(all, d.custom...)

	seen := make(map[string]bool, len(all))
	for _, s := range all {
		if seen[s.Name()] {
			return nil, &strategy.ConfigError{Strategy: s.Name(), Message: "duplicate strategy name"}
		}
		seen[s.Name()] = true
	}

	slices.SortStableFunc(all, func(a, b strategy.Strategy) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	d.strategies = all
	return d, nil
}

func (d *Detector) construct(cfg strategy.Config) (strategy.Strategy, error) {
	if d.registry != nil {
		return d.registry.New(cfg)
	}
	return strategy.New(cfg)
}

// Strategies returns the strategy names in evaluation order.
func (d *Detector) Strategies() []string {
	names := make([]string, len(d.strategies))
	for i, s := range d.strategies {
		names[i] = s.Name()
	}
	return names
}

// Reset clears the cursor state of every strategy.
func (d *Detector) Reset() {
	for _, s := range d.strategies {
		s.Reset()
	}
}

// Report summarizes one detection pass.
type Report struct {
	// OperationID is the id of the processed operation (may be empty).
	OperationID string

	// Records is the number of sub-operations visited.
	Records int

	// Groups is the number of meta groups attached to the operation.
	Groups int

	// Discarded is the number of candidate groups dropped for being
	// under their strategy's minimum size or rejected by a GroupFilter.
	Discarded int

	// GroupsByStrategy counts surviving groups per strategy name.
	GroupsByStrategy map[string]int

	// Errors holds recovered per-record failures (*RuntimeError).
	Errors []error

	// Duration is the wall time spent in the pass.
	Duration time.Duration
}

// bucket accumulates the members of one candidate group.
type bucket struct {
	strategy    strategy.Strategy
	id          string
	description string
	members     []oplog.SubOperation
}

type bucketKey struct {
	strategy string
	id       string
}

// Run detects meta groups for op and replaces op.MetaGroups.
// See RunContext.
func (d *Detector) Run(op *oplog.Operation) (*Report, error) {
	return d.RunContext(context.Background(), op)
}

// RunContext detects meta groups for op and replaces op.MetaGroups.
//
// The returned error is non-nil only when op itself is unusable (nil or
// structurally invalid); op is left untouched in that case. Strategy
// failures are recovered and reported in Report.Errors. ctx is used for
// telemetry only; the pass itself is never interrupted.
func (d *Detector) RunContext(ctx context.Context, op *oplog.Operation) (*Report, error) {
	if err := oplog.Validate(op); err != nil {
		return nil, &RuntimeError{Code: ErrCodeInvalidOperation, Message: err.Error(), Cause: err}
	}

	began := time.Now()
	d.Reset()

	records := slices.Clone(op.SubOperations)
	slices.SortStableFunc(records, func(a, b oplog.SubOperation) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	pass := &strategy.Pass{Siblings: records, Context: op.Context}

	report := &Report{
		OperationID:      op.ID,
		Records:          len(records),
		GroupsByStrategy: make(map[string]int),
	}

	buckets := make(map[bucketKey]*bucket)
	var order []*bucket
	for _, rec := range records {
		for _, s := range d.strategies {
			id, ok, err := d.detect(s, rec, pass)
			if err != nil {
				d.logger.Warn("strategy detect failed, treating as no match",
					"strategy", s.Name(),
					"seq", rec.Seq,
					"error", err,
				)
				report.Errors = append(report.Errors, err)
				continue
			}
			if !ok {
				continue
			}

			key := bucketKey{strategy: s.Name(), id: id}
			b, exists := buckets[key]
			if !exists {
				b = &bucket{strategy: s, id: id, description: s.Name() + " group"}
				buckets[key] = b
				order = append(order, b)
			}
			b.members = append(b.members, rec)

			d.logger.Debug("record claimed",
				"strategy", s.Name(),
				"seq", rec.Seq,
				"group", id,
			)
			break
		}
	}

	groups := make([]oplog.MetaGroup, 0, len(order))
	for _, b := range order {
		if len(b.members) < b.strategy.MinGroupSize() {
			d.logger.Debug("group below minimum size, discarded",
				"strategy", b.strategy.Name(),
				"group", b.id,
				"size", len(b.members),
				"min", b.strategy.MinGroupSize(),
			)
			report.Discarded++
			continue
		}
		if keep, err := d.keep(b); err != nil || !keep {
			if err != nil {
				d.logger.Warn("strategy group filter failed, discarding group",
					"strategy", b.strategy.Name(),
					"group", b.id,
					"error", err,
				)
				report.Errors = append(report.Errors, err)
			} else {
				d.logger.Debug("group rejected by strategy, discarded",
					"strategy", b.strategy.Name(),
					"group", b.id,
					"size", len(b.members),
				)
			}
			report.Discarded++
			continue
		}
		g := summarize(b)
		desc, err := d.describe(b)
		if err != nil {
			d.logger.Warn("strategy describe failed, keeping provisional description",
				"strategy", b.strategy.Name(),
				"group", b.id,
				"error", err,
			)
			report.Errors = append(report.Errors, err)
			desc = fmt.Sprintf("%s (%d operations)", b.description, len(b.members))
		}
		g.Description = desc
		groups = append(groups, g)
		report.GroupsByStrategy[g.Strategy]++
	}

	slices.SortStableFunc(groups, func(a, b oplog.MetaGroup) int {
		if c := cmp.Compare(a.StartTime, b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Members[0], b.Members[0])
	})

	op.MetaGroups = groups
	report.Groups = len(groups)
	report.Duration = time.Since(began)

	if d.telemetry != nil {
		d.telemetry.record(ctx, report)
	}
	d.logger.Info("detection complete",
		"operation", op.Name,
		"records", report.Records,
		"groups", report.Groups,
		"discarded", report.Discarded,
		"errors", len(report.Errors),
	)
	return report, nil
}

// summarize computes membership, timing and status counts for a bucket.
// Members are already in Seq order.
func summarize(b *bucket) oplog.MetaGroup {
	g := oplog.MetaGroup{
		ID:       b.id,
		Strategy: b.strategy.Name(),
		Members:  make([]int, len(b.members)),
	}
	start, end := math.Inf(1), math.Inf(-1)
	for i, m := range b.members {
		g.Members[i] = m.Seq
		switch {
		case m.Status.IsSuccess():
			g.SuccessCount++
		case m.Status.IsFailure():
			g.ErrorCount++
		}
		if s, ok := m.Start(); ok {
			e, _ := m.End()
			start = min(start, s)
			end = max(end, e)
			g.Timed = true
		}
	}
	if g.Timed {
		g.StartTime = start
		g.EndTime = end
	}
	return g
}

// detect calls s.Detect, converting errors and panics into *RuntimeError.
func (d *Detector) detect(s strategy.Strategy, rec oplog.SubOperation, pass *strategy.Pass) (id string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			id, ok = "", false
			err = &RuntimeError{
				Code:     ErrCodePanic,
				Message:  fmt.Sprintf("detect panicked: %v", r),
				Strategy: s.Name(),
				Seq:      rec.Seq,
			}
		}
	}()

	id, ok, err = s.Detect(rec, pass)
	if err != nil {
		return "", false, &RuntimeError{
			Code:     ErrCodeDetectFailed,
			Message:  err.Error(),
			Strategy: s.Name(),
			Seq:      rec.Seq,
			Cause:    err,
		}
	}
	if ok && id == "" {
		return "", false, &RuntimeError{
			Code:     ErrCodeDetectFailed,
			Message:  "empty group id",
			Strategy: s.Name(),
			Seq:      rec.Seq,
		}
	}
	return id, ok, nil
}

// keep asks a GroupFilter strategy whether b survives. Strategies without
// a filter keep every group that passed the size check.
func (d *Detector) keep(b *bucket) (ok bool, err error) {
	f, isFilter := b.strategy.(strategy.GroupFilter)
	if !isFilter {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = &RuntimeError{
				Code:     ErrCodePanic,
				Message:  fmt.Sprintf("keep group panicked: %v", r),
				Strategy: b.strategy.Name(),
				GroupID:  b.id,
			}
		}
	}()
	return f.KeepGroup(b.id, slices.Clone(b.members)), nil
}

// describe calls Strategy.Describe with the final member list, converting
// errors and panics into *RuntimeError.
func (d *Detector) describe(b *bucket) (desc string, err error) {
	defer func() {
		if r := recover(); r != nil {
			desc = ""
			err = &RuntimeError{
				Code:     ErrCodePanic,
				Message:  fmt.Sprintf("describe panicked: %v", r),
				Strategy: b.strategy.Name(),
				GroupID:  b.id,
			}
		}
	}()

	desc, err = b.strategy.Describe(b.id, slices.Clone(b.members))
	if err != nil {
		return "", &RuntimeError{
			Code:     ErrCodeDescribeFailed,
			Message:  err.Error(),
			Strategy: b.strategy.Name(),
			GroupID:  b.id,
			Cause:    err,
		}
	}
	return desc, nil
}
