package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/store"
)

// TestWorkflow drives import, analyze, show and verify against one database.
func TestWorkflow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ops.db")

	out, _, err := execute(t, "import", "--db", db, "--format", "json",
		"testdata/ops/relay.yaml", "testdata/ops/poll.json")
	require.NoError(t, err)
	status, imported := decodeData[ImportResult](t, out)
	require.Equal(t, "ok", status)
	assert.Equal(t, 2, imported.Inserted)
	require.Len(t, imported.Operations, 2)
	relayID := imported.Operations[0].ID
	assert.Equal(t, "sync_motors", imported.Operations[0].Name)
	assert.Equal(t, 4, imported.Operations[0].Records)

	t.Run("reimport reports duplicates", func(t *testing.T) {
		out, _, err := execute(t, "import", "--db", db, "--format", "json",
			"testdata/ops/relay.yaml", "testdata/ops/poll.json")
		require.NoError(t, err)
		_, again := decodeData[ImportResult](t, out)
		assert.Equal(t, 0, again.Inserted)
		assert.Equal(t, 2, again.Duplicates)
		assert.Equal(t, relayID, again.Operations[0].ID)
	})

	out, _, err = execute(t, "analyze", "--db", db, "--format", "json")
	require.NoError(t, err)
	_, analyzed := decodeData[AnalyzeResult](t, out)
	assert.Equal(t, 2, analyzed.Succeeded)
	assert.Equal(t, 0, analyzed.Failed)

	t.Run("show lists operations", func(t *testing.T) {
		out, _, err := execute(t, "show", "--db", db, "--format", "json")
		require.NoError(t, err)
		_, summaries := decodeData[[]store.OperationSummary](t, out)
		require.Len(t, summaries, 2)
		assert.Equal(t, relayID, summaries[0].ID)
		assert.Positive(t, summaries[1].MetaGroups)
	})

	t.Run("show renders one operation", func(t *testing.T) {
		out, _, err := execute(t, "show", "--db", db, "--op", relayID)
		require.NoError(t, err)
		assert.Contains(t, out, "Operation: sync_motors [OK]")
		assert.Contains(t, out, "ID: "+relayID)

		out, _, err = execute(t, "show", "--db", db, "--op", relayID, "--format", "json")
		require.NoError(t, err)
		_, op := decodeData[oplog.Operation](t, out)
		assert.Equal(t, relayID, op.ID)
		assert.Len(t, op.SubOperations, 4)
	})

	t.Run("show unknown operation", func(t *testing.T) {
		out, _, err := execute(t, "show", "--db", db, "--op", "nope")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E005]")
	})

	t.Run("verify matches after analyze", func(t *testing.T) {
		out, _, err := execute(t, "verify", "--db", db, "--format", "json")
		require.NoError(t, err)
		_, verified := decodeData[VerifyResult](t, out)
		assert.True(t, verified.AllMatch)
		assert.Equal(t, 2, verified.Total)
	})

	t.Run("verify detects a changed configuration", func(t *testing.T) {
		out, _, err := execute(t, "verify", "--db", db, "--op", relayID,
			"--config", "testdata/configs/burst.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "✗ "+relayID)
	})

	t.Run("analyze is idempotent", func(t *testing.T) {
		_, _, err := execute(t, "analyze", "--db", db)
		require.NoError(t, err)
		_, _, err = execute(t, "verify", "--db", db)
		require.NoError(t, err)
	})
}

func TestImport_RequiresDatabase(t *testing.T) {
	_, _, err := execute(t, "import", "testdata/ops/relay.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestImport_InvalidOperation(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ops.db")
	out, _, err := execute(t, "import", "--db", db, "testdata/ops/invalid.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E101]")
}

func TestShow_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ops.db")
	out, _, err := execute(t, "show", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No operations stored.\n", out)
}
