package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/metaop/internal/detector"
	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/store"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	*RootOptions
	Database    string
	Config      string
	Operations  []string
	Concurrency int
}

// AnalyzedOperation is the outcome for one stored operation.
type AnalyzedOperation struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Groups int      `json:"groups"`
	Errors []string `json:"errors,omitempty"`
	Failed bool     `json:"failed,omitempty"`
}

// AnalyzeResult is the JSON payload of the analyze command.
type AnalyzeResult struct {
	Operations []AnalyzedOperation `json:"operations"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Detect and store meta groups for stored operations",
		Long: `Run detection over operations stored in a database and persist the
resulting meta groups.

Operations are processed concurrently; each gets its own detector from a
shared pool. Stored groups are replaced, never appended, so analyzing the
same operation twice leaves the same groups behind.

Exit codes:
  0 - All operations analyzed
  1 - One or more operations failed
  2 - Command error (database, configuration)

Examples:
  metaop analyze --db ./ops.db
  metaop analyze --db ./ops.db --op 0190c3e4-... --config ./strategies.yaml
  metaop analyze --db ./ops.db --concurrency 8 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "strategy configuration file (.cue, .json, .yaml)")
	cmd.Flags().StringSliceVar(&opts.Operations, "op", nil, "operation id to analyze (repeatable; default all)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "operations processed in parallel (0 = GOMAXPROCS)")

	return cmd
}

func runAnalyze(opts *AnalyzeOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	// Stop scheduling new operations on SIGINT/SIGTERM
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgs, err := loadStrategies(f, opts.Config)
	if err != nil {
		return err
	}

	telemetry, err := detector.NewTelemetry(nil, nil)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to set up telemetry", err)
	}
	pool, err := detector.NewPool(cfgs,
		detector.WithLogger(slog.Default()),
		detector.WithTelemetry(telemetry),
	)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid configuration", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	ops, err := readOperations(ctx, st, opts.Operations)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, "operation not found", err)
		}
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read operations", err)
	}
	f.VerboseLog("Analyzing %d operations", len(ops))

	batch, err := detector.ProcessAll(ctx, ops, pool, opts.Concurrency)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeDetect, "analysis interrupted", err)
	}

	result := AnalyzeResult{Operations: make([]AnalyzedOperation, 0, len(ops))}
	for i, op := range ops {
		entry := AnalyzedOperation{ID: op.ID, Name: op.Name}
		if perr := batch.Errors[i]; perr != nil {
			entry.Failed = true
			entry.Errors = []string{perr.Error()}
			result.Failed++
			result.Operations = append(result.Operations, entry)
			continue
		}
		if err := st.ReplaceMetaGroups(ctx, op.ID, op.MetaGroups); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to store groups for %s", op.ID), err)
		}
		report := batch.Reports[i]
		entry.Groups = report.Groups
		for _, rerr := range report.Errors {
			entry.Errors = append(entry.Errors, rerr.Error())
		}
		result.Succeeded++
		result.Operations = append(result.Operations, entry)
	}

	if err := outputAnalyze(f, result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d operations failed", result.Failed, len(ops)))
	}
	return nil
}

// readOperations loads the requested operations, or every stored operation
// in insertion order when ids is empty.
func readOperations(ctx context.Context, st *store.Store, ids []string) ([]*oplog.Operation, error) {
	if len(ids) == 0 {
		summaries, err := st.ListOperations(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range summaries {
			ids = append(ids, s.ID)
		}
	}
	ops := make([]*oplog.Operation, 0, len(ids))
	for _, id := range ids {
		op, err := st.ReadOperation(ctx, id)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func outputAnalyze(f *OutputFormatter, result AnalyzeResult) error {
	if f.IsJSON() {
		return f.Success(result)
	}
	w := f.Writer
	for _, op := range result.Operations {
		if op.Failed {
			fmt.Fprintf(w, "✗ %s  %s\n", op.ID, op.Name)
		} else {
			fmt.Fprintf(w, "✓ %s  %s  (%d meta groups)\n", op.ID, op.Name, op.Groups)
		}
		for _, e := range op.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d analyzed, %d failed\n", result.Succeeded, result.Failed)
	return nil
}
