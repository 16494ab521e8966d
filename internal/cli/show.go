package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/metaop/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database  string
	Operation string
	Expand    bool
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored operations and their meta groups",
		Long: `Show a stored operation with its meta groups collapsed, or list every
stored operation when --op is omitted.

Groups are shown exactly as stored; run analyze first to (re)compute them.

Examples:
  metaop show --db ./ops.db
  metaop show --db ./ops.db --op 0190c3e4-... --expand
  metaop show --db ./ops.db --op 0190c3e4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Operation, "op", "", "operation id to show")
	cmd.Flags().BoolVar(&opts.Expand, "expand", false, "list the members of each meta group")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	if opts.Operation == "" {
		return listOperations(ctx, f, st)
	}

	op, err := st.ReadOperation(ctx, opts.Operation)
	if errors.Is(err, store.ErrNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("operation not found: %s", opts.Operation), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read operation", err)
	}

	if f.IsJSON() {
		return f.Success(op)
	}
	renderOperation(f.Writer, op, opts.Expand)
	return nil
}

func listOperations(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	summaries, err := st.ListOperations(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to list operations", err)
	}
	if f.IsJSON() {
		return f.Success(summaries)
	}
	w := f.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No operations stored.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %-24s %-9s %4d records  %3d meta groups\n",
			s.ID, s.Name, s.Status, s.SubOperations, s.MetaGroups)
	}
	return nil
}
