package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/metaop/internal/oplog"
)

// ErrIDConflict is returned when an operation id is already stored with
// different content.
var ErrIDConflict = errors.New("operation id already stored with different content")

// WriteOperation stores an operation and its sub-operations.
//
// Writes are idempotent by content digest: if an operation with the same
// digest exists, its id is returned with inserted=false and nothing is
// written. Otherwise op.ID is used, or a new id from ids when op.ID is
// empty, and op.ID is updated. Meta groups already attached to op are
// stored as well.
func (s *Store) WriteOperation(ctx context.Context, op *oplog.Operation, ids IDGenerator) (id string, inserted bool, err error) {
	if err := oplog.Validate(op); err != nil {
		return "", false, fmt.Errorf("write operation: %w", err)
	}
	digest, err := oplog.Digest(op)
	if err != nil {
		return "", false, fmt.Errorf("write operation: %w", err)
	}
	contextJSON, err := marshalContext(op.Context)
	if err != nil {
		return "", false, fmt.Errorf("write operation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("write operation: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM operations WHERE digest = ?`, digest).Scan(&existing)
	switch {
	case err == nil:
		op.ID = existing
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fmt.Errorf("write operation: lookup digest: %w", err)
	}

	id = op.ID
	if id == "" {
		if ids == nil {
			ids = UUIDv7Generator{}
		}
		id = ids.Generate()
	}

	var taken int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations WHERE id = ?`, id).Scan(&taken); err != nil {
		return "", false, fmt.Errorf("write operation: lookup id: %w", err)
	}
	if taken > 0 {
		return "", false, fmt.Errorf("write operation %s: %w", id, ErrIDConflict)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO operations
		(id, seq, digest, name, status, start_time, end_time, context, schema_version, engine_version)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM operations), ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		digest,
		op.Name,
		string(op.Status),
		nullFloat(op.StartTime),
		nullFloat(op.EndTime),
		contextJSON,
		oplog.SchemaVersion,
		oplog.EngineVersion,
	)
	if err != nil {
		return "", false, fmt.Errorf("write operation: %w", err)
	}

	for _, rec := range op.SubOperations {
		if err := insertSubOperation(ctx, tx, id, rec); err != nil {
			return "", false, fmt.Errorf("write operation: %w", err)
		}
	}
	if err := insertMetaGroups(ctx, tx, id, op.MetaGroups); err != nil {
		return "", false, fmt.Errorf("write operation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("write operation: commit: %w", err)
	}
	op.ID = id
	return id, true, nil
}

func insertSubOperation(ctx context.Context, tx *sql.Tx, operationID string, rec oplog.SubOperation) error {
	extraJSON, err := marshalExtra(rec.Extra)
	if err != nil {
		return fmt.Errorf("sub-operation %d: %w", rec.Seq, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sub_operations
		(operation_id, seq, name, target, start_time, end_time, status, origin_file, origin_line, child_count, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		operationID,
		rec.Seq,
		rec.Name,
		rec.Target,
		nullFloat(rec.StartTime),
		nullFloat(rec.EndTime),
		string(rec.Status),
		rec.Origin.File,
		rec.Origin.Line,
		rec.ChildCount,
		extraJSON,
	)
	if err != nil {
		return fmt.Errorf("sub-operation %d: %w", rec.Seq, err)
	}
	return nil
}

func insertMetaGroups(ctx context.Context, tx *sql.Tx, operationID string, groups []oplog.MetaGroup) error {
	for ord, g := range groups {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meta_groups
			(operation_id, id, ord, strategy, description, start_time, end_time, timed, success_count, error_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			operationID,
			g.ID,
			ord,
			g.Strategy,
			g.Description,
			g.StartTime,
			g.EndTime,
			g.Timed,
			g.SuccessCount,
			g.ErrorCount,
		)
		if err != nil {
			return fmt.Errorf("meta group %s: %w", g.ID, err)
		}
		for _, seq := range g.Members {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO meta_group_members (operation_id, group_id, seq)
				VALUES (?, ?, ?)
			`, operationID, g.ID, seq)
			if err != nil {
				return fmt.Errorf("meta group %s member %d: %w", g.ID, seq, err)
			}
		}
	}
	return nil
}

// ReplaceMetaGroups replaces every stored meta group of an operation with
// groups, in one transaction. Calling it twice with the same groups leaves
// the same rows.
//
// A member seq that is not a stored sub-operation, or that appears in two
// groups, fails the whole replacement.
func (s *Store) ReplaceMetaGroups(ctx context.Context, operationID string, groups []oplog.MetaGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace meta groups: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations WHERE id = ?`, operationID).Scan(&exists); err != nil {
		return fmt.Errorf("replace meta groups: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("replace meta groups %s: %w", operationID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM meta_group_members WHERE operation_id = ?`, operationID); err != nil {
		return fmt.Errorf("replace meta groups: delete members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meta_groups WHERE operation_id = ?`, operationID); err != nil {
		return fmt.Errorf("replace meta groups: delete groups: %w", err)
	}
	if err := insertMetaGroups(ctx, tx, operationID, groups); err != nil {
		return fmt.Errorf("replace meta groups: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace meta groups: commit: %w", err)
	}
	return nil
}
