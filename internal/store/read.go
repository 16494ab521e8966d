package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/metaop/internal/oplog"
)

// ErrNotFound is returned when a requested operation does not exist.
var ErrNotFound = errors.New("operation not found")

// ReadOperation returns a stored operation with its sub-operations (ORDER BY
// seq) and meta groups (in stored detector order, members ORDER BY seq).
func (s *Store) ReadOperation(ctx context.Context, id string) (*oplog.Operation, error) {
	var (
		op          oplog.Operation
		status      string
		start, end  sql.NullFloat64
		contextJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, start_time, end_time, context
		FROM operations
		WHERE id = ?
	`, id).Scan(&op.ID, &op.Name, &status, &start, &end, &contextJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read operation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read operation %s: %w", id, err)
	}
	op.Status = oplog.Status(status)
	op.StartTime = floatPtr(start)
	op.EndTime = floatPtr(end)
	if op.Context, err = unmarshalContext(contextJSON); err != nil {
		return nil, fmt.Errorf("read operation %s: %w", id, err)
	}

	if op.SubOperations, err = s.readSubOperations(ctx, id); err != nil {
		return nil, err
	}
	if op.MetaGroups, err = s.ReadMetaGroups(ctx, id); err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *Store) readSubOperations(ctx context.Context, operationID string) ([]oplog.SubOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, name, target, start_time, end_time, status, origin_file, origin_line, child_count, extra
		FROM sub_operations
		WHERE operation_id = ?
		ORDER BY seq ASC
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("query sub-operations: %w", err)
	}
	defer rows.Close()

	recs := []oplog.SubOperation{}
	for rows.Next() {
		var (
			rec        oplog.SubOperation
			start, end sql.NullFloat64
			status     string
			extraJSON  string
		)
		if err := rows.Scan(&rec.Seq, &rec.Name, &rec.Target, &start, &end, &status,
			&rec.Origin.File, &rec.Origin.Line, &rec.ChildCount, &extraJSON); err != nil {
			return nil, fmt.Errorf("scan sub-operation: %w", err)
		}
		rec.StartTime = floatPtr(start)
		rec.EndTime = floatPtr(end)
		rec.Status = oplog.Status(status)
		if rec.Extra, err = unmarshalExtra(extraJSON); err != nil {
			return nil, fmt.Errorf("sub-operation %d: %w", rec.Seq, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sub-operations: %w", err)
	}
	return recs, nil
}

// ReadMetaGroups returns the stored meta groups of an operation in the
// order they were written. Returns an empty slice (not nil) when none exist.
func (s *Store) ReadMetaGroups(ctx context.Context, operationID string) ([]oplog.MetaGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, description, start_time, end_time, timed, success_count, error_count
		FROM meta_groups
		WHERE operation_id = ?
		ORDER BY ord ASC
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("query meta groups: %w", err)
	}
	defer rows.Close()

	groups := []oplog.MetaGroup{}
	index := make(map[string]int)
	for rows.Next() {
		var g oplog.MetaGroup
		if err := rows.Scan(&g.ID, &g.Strategy, &g.Description, &g.StartTime, &g.EndTime,
			&g.Timed, &g.SuccessCount, &g.ErrorCount); err != nil {
			return nil, fmt.Errorf("scan meta group: %w", err)
		}
		g.Members = []int{}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meta groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	members, err := s.db.QueryContext(ctx, `
		SELECT group_id, seq
		FROM meta_group_members
		WHERE operation_id = ?
		ORDER BY seq ASC
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("query meta group members: %w", err)
	}
	defer members.Close()

	for members.Next() {
		var (
			groupID string
			seq     int
		)
		if err := members.Scan(&groupID, &seq); err != nil {
			return nil, fmt.Errorf("scan meta group member: %w", err)
		}
		i, ok := index[groupID]
		if !ok {
			return nil, fmt.Errorf("member %d references unknown group %s", seq, groupID)
		}
		groups[i].Members = append(groups[i].Members, seq)
	}
	if err := members.Err(); err != nil {
		return nil, fmt.Errorf("iterate meta group members: %w", err)
	}
	return groups, nil
}

// OperationSummary is one row of ListOperations.
type OperationSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	Digest        string `json:"digest"`
	SubOperations int    `json:"sub_operations"`
	MetaGroups    int    `json:"meta_groups"`
}

// ListOperations returns a summary of every stored operation in import
// order: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListOperations(ctx context.Context) ([]OperationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.status, o.digest,
			(SELECT COUNT(*) FROM sub_operations so WHERE so.operation_id = o.id),
			(SELECT COUNT(*) FROM meta_groups mg WHERE mg.operation_id = o.id)
		FROM operations o
		ORDER BY o.seq ASC, o.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	out := []OperationSummary{}
	for rows.Next() {
		var sum OperationSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Status, &sum.Digest, &sum.SubOperations, &sum.MetaGroups); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return out, nil
}
