// Package detector runs clustering strategies over an operation's
// sub-operations and assembles the resulting meta groups.
//
// PROCESSING MODEL:
//
// One Run is a single forward pass over the sub-operations in Seq order.
// For each record the strategies are consulted in ascending priority; the
// first one that returns a group id claims the record and the remaining
// strategies never see it. After the pass, groups below their strategy's
// minimum size are discarded, survivors are summarized and described, and
// the sorted result replaces Operation.MetaGroups.
//
// Strategies carry cursor state, so a Detector is not safe for concurrent
// use. Run resets every strategy before starting. Use one Detector per
// goroutine, a Pool, or ProcessAll to handle independent operations in
// parallel.
//
// A strategy that fails or panics on one record is logged and treated as
// "no match" for that record. It never aborts the pass.
package detector
