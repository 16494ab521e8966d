package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/metaop/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string

	// IDs allows overriding the operation id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs store.IDGenerator
}

// ImportedOperation is the outcome for one imported file.
type ImportedOperation struct {
	Path     string `json:"path"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Records  int    `json:"records"`
	Inserted bool   `json:"inserted"`
}

// ImportResult is the JSON payload of the import command.
type ImportResult struct {
	Operations []ImportedOperation `json:"operations"`
	Inserted   int                 `json:"inserted"`
	Duplicates int                 `json:"duplicates"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <operation-file>...",
		Short: "Store operation files in a database",
		Long: `Store operation records in a SQLite database.

Imports are idempotent: a file whose recorded content is already stored
is reported as a duplicate and keeps its existing id. Operations without
an id get a time-sortable UUIDv7.

Examples:
  metaop import --db ./ops.db ./sync_motors.yaml
  metaop import --db ./ops.db ./logs/*.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, paths []string, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	ids := opts.IDs
	if ids == nil {
		ids = store.UUIDv7Generator{}
	}

	result := ImportResult{Operations: make([]ImportedOperation, 0, len(paths))}
	for _, path := range paths {
		op, err := loadOperation(f, path)
		if err != nil {
			return err
		}
		id, inserted, err := st.WriteOperation(ctx, op, ids)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to store %s", path), err)
		}
		result.Operations = append(result.Operations, ImportedOperation{
			Path:     path,
			ID:       id,
			Name:     op.Name,
			Records:  len(op.SubOperations),
			Inserted: inserted,
		})
		if inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
	}

	if f.IsJSON() {
		return f.Success(result)
	}
	w := f.Writer
	for _, imp := range result.Operations {
		mark := "+"
		if !imp.Inserted {
			mark = "="
		}
		fmt.Fprintf(w, "%s %s  %s (%d records)  %s\n", mark, imp.ID, imp.Name, imp.Records, imp.Path)
	}
	fmt.Fprintf(w, "\nImported %d operations (%d already stored)\n", result.Inserted, result.Duplicates)
	return nil
}
