// Package strategy implements the pluggable clustering strategies used by
// the detector.
//
// A Strategy is a stateful, single-pass classifier. The detector visits the
// sub-operations of one finished operation in ascending Seq order and asks
// each strategy, in priority order, whether the record belongs to one of its
// clusters. Strategies keep their cursor in an owned accumulator that Reset
// clears, so an instance may be reused across passes but never shared by two
// passes at once.
//
// Built-in kinds:
//
//   - time_window: clusters by elapsed time between consecutive records
//   - target_cluster: batches consecutive records sharing a target
//   - name_similarity: batches consecutive records sharing a name prefix
//   - sequence_count: groups runs of identical (name, status) pairs
//   - source_burst: groups atomic records emitted from one relay call-site,
//     absorbing interleaved noise and resolving the true actor
//
// Kinds are a closed enumeration resolved by New. Custom kinds are added by
// registering a Constructor on a Registry; nothing is looked up by reflection.
//
// Configuration is validated once, at construction. Invalid parameters
// return *ConfigError and no strategy is produced.
package strategy
