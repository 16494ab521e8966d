package oplog

import (
	"fmt"
	"math"
)

// CallSite identifies the code location that produced a record.
// Compared by value.
type CallSite struct {
	File string `json:"file" yaml:"file"`
	Line int    `json:"line" yaml:"line"`
}

// String renders the call-site as "file:line".
func (c CallSite) String() string {
	if c.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", c.File, c.Line)
}

// IsZero reports whether the call-site carries no location.
func (c CallSite) IsZero() bool {
	return c.File == "" && c.Line == 0
}

// Status is the completion status of an operation or sub-operation.
type Status string

const (
	StatusOK        Status = "OK"
	StatusError     Status = "ERROR"
	StatusSkipped   Status = "SKIPPED"
	StatusCancelled Status = "CANCELLED"
)

// IsSuccess reports whether the status counts as a success.
func (s Status) IsSuccess() bool {
	return s == StatusOK
}

// IsFailure reports whether the status counts as an error in group stats.
// SKIPPED counts as neither success nor failure.
func (s Status) IsFailure() bool {
	return s != StatusOK && s != StatusSkipped
}

// SubOperation is one primitive, timestamped step recorded during an
// operation's execution.
type SubOperation struct {
	Seq        int            `json:"seq" yaml:"seq"`
	Name       string         `json:"name" yaml:"name"`
	Target     string         `json:"target,omitempty" yaml:"target,omitempty"`
	StartTime  *float64       `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime    *float64       `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Status     Status         `json:"status" yaml:"status"`
	Origin     CallSite       `json:"origin" yaml:"origin"`
	ChildCount int            `json:"child_count,omitempty" yaml:"child_count,omitempty"`
	Extra      map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Start returns the start time and whether the record carries one.
func (r SubOperation) Start() (float64, bool) {
	if r.StartTime == nil {
		return 0, false
	}
	return *r.StartTime, true
}

// End returns the end time, falling back to the start time when the record
// has no end. The bool is false when the record has no timing at all.
func (r SubOperation) End() (float64, bool) {
	if r.EndTime != nil {
		return *r.EndTime, true
	}
	return r.Start()
}

// Duration returns the elapsed time in seconds.
// A record without an end time has zero duration.
func (r SubOperation) Duration() (float64, bool) {
	start, ok := r.Start()
	if !ok {
		return 0, false
	}
	if r.EndTime == nil {
		return 0, true
	}
	return math.Max(0, *r.EndTime-start), true
}

// Operation is the root record: one finished user-level action.
type Operation struct {
	ID            string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name          string         `json:"name" yaml:"name"`
	StartTime     *float64       `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime       *float64       `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Status        Status         `json:"status" yaml:"status"`
	SubOperations []SubOperation `json:"sub_operations" yaml:"sub_operations"`
	Context       CallContext    `json:"context,omitempty" yaml:"context,omitempty"`
	MetaGroups    []MetaGroup    `json:"meta_groups,omitempty" yaml:"meta_groups,omitempty"`
}

// Lookup returns the sub-operation with the given sequence index.
func (o *Operation) Lookup(seq int) (SubOperation, bool) {
	for _, rec := range o.SubOperations {
		if rec.Seq == seq {
			return rec, true
		}
	}
	return SubOperation{}, false
}

// GroupOf returns the meta group that contains seq, if any.
func (o *Operation) GroupOf(seq int) (MetaGroup, bool) {
	for _, g := range o.MetaGroups {
		for _, m := range g.Members {
			if m == seq {
				return g, true
			}
		}
	}
	return MetaGroup{}, false
}

// MetaGroup is a detected cluster of sub-operations collapsed into one
// meta-operation. It is only ever assembled by the detector.
type MetaGroup struct {
	ID           string  `json:"id" yaml:"id"`
	Strategy     string  `json:"strategy" yaml:"strategy"`
	Description  string  `json:"description" yaml:"description"`
	Members      []int   `json:"members" yaml:"members"`
	StartTime    float64 `json:"start_time" yaml:"start_time"`
	EndTime      float64 `json:"end_time" yaml:"end_time"`
	Timed        bool    `json:"timed" yaml:"timed"`
	SuccessCount int     `json:"success_count" yaml:"success_count"`
	ErrorCount   int     `json:"error_count" yaml:"error_count"`
}

// Size returns the number of member records.
func (g MetaGroup) Size() int {
	return len(g.Members)
}

// Duration returns the group's elapsed time in seconds.
// Groups without any timed member report zero.
func (g MetaGroup) Duration() float64 {
	if !g.Timed {
		return 0
	}
	return math.Max(0, g.EndTime-g.StartTime)
}

// Seconds returns a pointer to v. Convenience for building records.
func Seconds(v float64) *float64 {
	return &v
}

// Millis returns a pointer to ms expressed in seconds.
func Millis(ms float64) *float64 {
	v := ms / 1000
	return &v
}
