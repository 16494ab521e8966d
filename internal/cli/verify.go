package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/metaop/internal/detector"
	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database  string
	Config    string
	Operation string // optional - specific operation only
}

// VerifiedOperation holds the verification result for one operation.
type VerifiedOperation struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Stored   int    `json:"stored_groups"`
	Detected int    `json:"detected_groups"`
	Match    bool   `json:"match"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Operations []VerifiedOperation `json:"operations"`
	Total      int                 `json:"total"`
	AllMatch   bool                `json:"all_match"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check stored meta groups against a fresh detection pass",
		Long: `Re-run detection for stored operations and compare the result with the
meta groups in the database. Nothing is written.

Detection is deterministic, so a mismatch means the configuration changed
since the groups were stored, or the stored groups were edited.

Exit codes:
  0 - All stored groups match
  1 - One or more operations differ
  2 - Command error

Examples:
  metaop verify --db ./ops.db
  metaop verify --db ./ops.db --op 0190c3e4-... --config ./strategies.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "strategy configuration file (.cue, .json, .yaml)")
	cmd.Flags().StringVar(&opts.Operation, "op", "", "verify a specific operation only")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	cfgs, err := loadStrategies(f, opts.Config)
	if err != nil {
		return err
	}
	pool, err := detector.NewPool(cfgs, detector.WithLogger(slog.Default()))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid configuration", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	var ids []string
	if opts.Operation != "" {
		ids = []string{opts.Operation}
	}
	ops, err := readOperations(ctx, st, ids)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, "operation not found", err)
		}
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read operations", err)
	}

	result := VerifyResult{
		Operations: make([]VerifiedOperation, 0, len(ops)),
		Total:      len(ops),
		AllMatch:   true,
	}
	for _, op := range ops {
		v, err := verifyOperation(pool, op)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeDetect, fmt.Sprintf("detection failed for %s", op.ID), err)
		}
		f.VerboseLog("Verified %s: stored=%d detected=%d match=%v", op.ID, v.Stored, v.Detected, v.Match)
		result.Operations = append(result.Operations, v)
		if !v.Match {
			result.AllMatch = false
		}
	}

	if err := outputVerify(f, result); err != nil {
		return err
	}
	if !result.AllMatch {
		return WrapExitError(ExitFailure, "stored meta groups differ from detection",
			errors.New(ErrCodeMismatch))
	}
	return nil
}

// verifyOperation detects groups on op and compares them with the groups
// op was stored with.
func verifyOperation(pool *detector.Pool, op *oplog.Operation) (VerifiedOperation, error) {
	stored := slices.Clone(op.MetaGroups)
	if _, err := pool.Run(op); err != nil {
		return VerifiedOperation{}, err
	}
	return VerifiedOperation{
		ID:       op.ID,
		Name:     op.Name,
		Stored:   len(stored),
		Detected: len(op.MetaGroups),
		Match:    groupsEqual(stored, op.MetaGroups),
	}, nil
}

func groupsEqual(a, b []oplog.MetaGroup) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func outputVerify(f *OutputFormatter, result VerifyResult) error {
	if f.IsJSON() {
		return f.Success(result)
	}
	w := f.Writer
	for _, v := range result.Operations {
		mark := "✓"
		if !v.Match {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s  %s  stored=%d detected=%d\n", mark, v.ID, v.Name, v.Stored, v.Detected)
	}
	if result.AllMatch {
		fmt.Fprintf(w, "\nAll %d operations match\n", result.Total)
	} else {
		fmt.Fprintln(w, "\nStored meta groups differ from a fresh pass (run analyze to refresh)")
	}
	return nil
}
