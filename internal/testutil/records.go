package testutil

import (
	"github.com/roach88/metaop/internal/oplog"
)

// RecordOption customizes a sub-operation built by OperationBuilder.
type RecordOption func(*oplog.SubOperation)

// At sets the start time in milliseconds; the record has no end time.
func At(ms float64) RecordOption {
	return func(r *oplog.SubOperation) {
		r.StartTime = oplog.Millis(ms)
	}
}

// Span sets the start time and a duration, both in milliseconds.
func Span(startMs, durationMs float64) RecordOption {
	return func(r *oplog.SubOperation) {
		r.StartTime = oplog.Millis(startMs)
		r.EndTime = oplog.Millis(startMs + durationMs)
	}
}

// On sets the record's target.
func On(target string) RecordOption {
	return func(r *oplog.SubOperation) {
		r.Target = target
	}
}

// From sets the record's origin call-site.
func From(site oplog.CallSite) RecordOption {
	return func(r *oplog.SubOperation) {
		r.Origin = site
	}
}

// WithStatus overrides the default OK status.
func WithStatus(s oplog.Status) RecordOption {
	return func(r *oplog.SubOperation) {
		r.Status = s
	}
}

// WithChildren sets the record's child count.
func WithChildren(n int) RecordOption {
	return func(r *oplog.SubOperation) {
		r.ChildCount = n
	}
}

// WithExtra sets one extra parameter.
func WithExtra(key string, value any) RecordOption {
	return func(r *oplog.SubOperation) {
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[key] = value
	}
}

// OperationBuilder assembles operations with sequential Seq values.
//
// Example:
//
//	op := testutil.NewOperation("scan").
//		Add("get", testutil.Span(0, 1), testutil.From(relay)).
//		Add("set", testutil.Span(20, 1), testutil.From(relay)).
//		Build()
type OperationBuilder struct {
	clock *SeqClock
	op    oplog.Operation
}

// NewOperation starts a builder for an OK operation named name.
func NewOperation(name string) *OperationBuilder {
	return &OperationBuilder{
		clock: NewSeqClock(),
		op:    oplog.Operation{Name: name, Status: oplog.StatusOK},
	}
}

// Add appends a sub-operation with the next sequence index.
func (b *OperationBuilder) Add(name string, opts ...RecordOption) *OperationBuilder {
	rec := oplog.SubOperation{
		Seq:    b.clock.Next(),
		Name:   name,
		Status: oplog.StatusOK,
	}
	for _, opt := range opts {
		opt(&rec)
	}
	b.op.SubOperations = append(b.op.SubOperations, rec)
	return b
}

// Repeat appends n identical sub-operations, each starting stepMs after
// the previous one (beginning at startMs) and lasting durationMs.
func (b *OperationBuilder) Repeat(n int, name string, startMs, stepMs, durationMs float64, opts ...RecordOption) *OperationBuilder {
	for i := 0; i < n; i++ {
		all := append([]RecordOption{Span(startMs+float64(i)*stepMs, durationMs)}, opts...)
		b.Add(name, all...)
	}
	return b
}

// Frame appends a call-context frame. endMs < 0 marks a frame still
// executing when the operation finished.
func (b *OperationBuilder) Frame(site oplog.CallSite, depth int, startMs, endMs float64) *OperationBuilder {
	f := oplog.CallFrame{Site: site, Depth: depth, Start: startMs / 1000}
	if endMs >= 0 {
		f.End = oplog.Millis(endMs)
	}
	b.op.Context.Frames = append(b.op.Context.Frames, f)
	return b
}

// WithID sets the operation id.
func (b *OperationBuilder) WithID(id string) *OperationBuilder {
	b.op.ID = id
	return b
}

// Build returns a fresh copy of the assembled operation.
func (b *OperationBuilder) Build() *oplog.Operation {
	op := b.op
	op.SubOperations = append([]oplog.SubOperation(nil), b.op.SubOperations...)
	op.Context.Frames = append([]oplog.CallFrame(nil), b.op.Context.Frames...)
	return &op
}
