package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/metaop/internal/oplog"
)

// detectAll runs s over op in Seq order and returns the verdict per Seq.
func detectAll(t *testing.T, s Strategy, op *oplog.Operation) map[int]string {
	t.Helper()
	pass := &Pass{Siblings: op.SubOperations, Context: op.Context}
	got := make(map[int]string)
	for _, rec := range op.SubOperations {
		id, ok, err := s.Detect(rec, pass)
		require.NoError(t, err)
		if ok {
			got[rec.Seq] = id
		}
	}
	return got
}

// membersOf collects the records assigned to groupID, in Seq order.
func membersOf(op *oplog.Operation, verdicts map[int]string, groupID string) []oplog.SubOperation {
	var out []oplog.SubOperation
	for _, rec := range op.SubOperations {
		if verdicts[rec.Seq] == groupID {
			out = append(out, rec)
		}
	}
	return out
}

func mustNew(t *testing.T, cfg Config) Strategy {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func requireConfigError(t *testing.T, err error, param string) {
	t.Helper()
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, param, ce.Param, "unexpected param in %v", err)
}
