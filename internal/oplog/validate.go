package oplog

import (
	"errors"
	"fmt"
)

// ErrDuplicateSeq is returned when two sub-operations share a sequence index.
var ErrDuplicateSeq = errors.New("duplicate sequence index")

// Validate checks the structural invariants of an operation record.
//
// It verifies that every sub-operation carries a unique Seq, that records
// with both times have EndTime >= StartTime, and that child counts are not
// negative. Timing is optional and never required.
func Validate(op *Operation) error {
	if op == nil {
		return errors.New("operation is nil")
	}
	seen := make(map[int]bool, len(op.SubOperations))
	for _, rec := range op.SubOperations {
		if seen[rec.Seq] {
			return fmt.Errorf("sub-operation %q: %w %d", rec.Name, ErrDuplicateSeq, rec.Seq)
		}
		seen[rec.Seq] = true

		if rec.StartTime != nil && rec.EndTime != nil && *rec.EndTime < *rec.StartTime {
			return fmt.Errorf("sub-operation %d (%s): end_time %v before start_time %v",
				rec.Seq, rec.Name, *rec.EndTime, *rec.StartTime)
		}
		if rec.ChildCount < 0 {
			return fmt.Errorf("sub-operation %d (%s): negative child_count %d", rec.Seq, rec.Name, rec.ChildCount)
		}
	}
	return nil
}
