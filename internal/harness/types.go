package harness

import (
	"github.com/roach88/metaop/internal/detector"
	"github.com/roach88/metaop/internal/oplog"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: all assertions held.
	Pass bool `json:"pass"`

	// Groups are the meta groups attached to the operation, in detector
	// order. When the scenario persists, these are the stored groups.
	Groups []oplog.MetaGroup `json:"groups"`

	// Ungrouped lists the sequence indices no group claimed, ascending.
	Ungrouped []int `json:"ungrouped"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Report is the detector's pass summary.
	Report *detector.Report `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Groups:    []oplog.MetaGroup{},
		Ungrouped: []int{},
		Errors:    []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
