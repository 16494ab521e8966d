// Package store provides SQLite-backed durable storage for recorded
// operations and the meta groups detected over them.
//
// Tables:
//   - operations: one row per recorded operation, unique by content digest
//   - sub_operations: the primitive records of each operation
//   - meta_groups: detected groups, in detector order
//   - meta_group_members: group membership, keyed by (operation_id, seq)
//     so a record can belong to at most one group
//
// # Critical Patterns
//
// Idempotent import:
//   - operations.digest is UNIQUE; importing the same content twice returns
//     the existing id
//
// Replace, never append:
//   - ReplaceMetaGroups deletes and reinserts inside one transaction, so
//     re-running detection yields the same rows
//
// Deterministic query results:
//   - operations ORDER BY seq ASC, id ASC COLLATE BINARY
//   - sub_operations and members ORDER BY seq ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// JSON columns (extra, context) use oplog.MarshalCanonical.
package store
