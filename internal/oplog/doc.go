// Package oplog provides the record model for finished operation logs.
//
// An Operation is one completed, user-visible unit of work. It holds the
// ordered list of SubOperation records captured by instrumentation and, once
// detection has run, the MetaGroups derived from them.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import oplog; oplog imports nothing internal.
//
// Key constraints:
//   - SubOperation.Seq is unique within its Operation and defines total order
//   - Records are never mutated after collection; detection only replaces
//     Operation.MetaGroups
//   - Times are float seconds; a nil StartTime means "no timing data"
//   - All JSON and YAML tags use snake_case
package oplog
