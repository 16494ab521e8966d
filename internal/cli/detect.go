package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/metaop/internal/detector"
	"github.com/roach88/metaop/internal/oplog"
)

// DetectOptions holds flags for the detect command.
type DetectOptions struct {
	*RootOptions
	Config string
	Expand bool
}

// DetectResult is the JSON payload of the detect command.
type DetectResult struct {
	Operation *oplog.Operation `json:"operation"`
	Report    ReportView       `json:"report"`
}

// NewDetectCommand creates the detect command.
func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DetectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "detect <operation-file>",
		Short: "Detect meta groups in an operation file",
		Long: `Load an operation record (YAML or JSON), run every configured strategy
over its sub-operations and print the operation with its meta groups.

Without --config the built-in strategy defaults are used.

Examples:
  metaop detect ./sync_motors.yaml
  metaop detect ./sync_motors.yaml --config ./strategies.cue --expand
  metaop detect ./sync_motors.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "strategy configuration file (.cue, .json, .yaml)")
	cmd.Flags().BoolVar(&opts.Expand, "expand", false, "list the members of each meta group")

	return cmd
}

func runDetect(opts *DetectOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	cfgs, err := loadStrategies(f, opts.Config)
	if err != nil {
		return err
	}
	op, err := loadOperation(f, path)
	if err != nil {
		return err
	}

	det, err := detector.New(cfgs, detector.WithLogger(slog.Default()))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid configuration", err)
	}
	f.VerboseLog("Strategies: %v", det.Strategies())

	report, err := det.Run(op)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeDetect, "detection failed", err)
	}

	if f.IsJSON() {
		return f.Success(DetectResult{Operation: op, Report: newReportView(report)})
	}
	renderOperation(f.Writer, op, opts.Expand)
	renderReport(f.Writer, report)
	return nil
}
