package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/metaop/internal/config"
)

// ValidationIssue is one problem found in a configuration file.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Strategies []string          `json:"strategies,omitempty"`
	Errors     []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate-config command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-config <config-file>",
		Short: "Validate a strategy configuration file",
		Long: `Validate a strategy configuration without running detection.

The file is checked against the configuration schema, then every enabled
strategy is constructed so parameter errors the schema cannot express
(regular expressions, limits between parameters, duplicate names) are
reported too.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(path)
	if err != nil {
		var loadErr *config.LoadError
		if !errors.As(err, &loadErr) {
			return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
		}
		switch loadErr.Code {
		case config.ErrCodeNotFound, config.ErrCodeUnsupported:
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidationErrors(formatter, []ValidationIssue{toIssue(loadErr)})
	}

	formatter.VerboseLog("Loaded %d strategies from %s", len(cfg.Entries), path)

	var issues []ValidationIssue
	for _, err := range cfg.Validate() {
		var loadErr *config.LoadError
		if errors.As(err, &loadErr) {
			issues = append(issues, toIssue(loadErr))
			continue
		}
		issues = append(issues, ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()})
	}
	if len(issues) > 0 {
		return outputValidationErrors(formatter, issues)
	}

	names := make([]string, 0, len(cfg.Entries))
	for _, s := range cfg.Strategies() {
		name := s.DisplayName()
		if s.Disabled {
			name += " (disabled)"
		}
		names = append(names, name)
	}
	return outputValidateSuccess(formatter, names)
}

func toIssue(err *config.LoadError) ValidationIssue {
	issue := ValidationIssue{Code: err.Code, Message: err.Message}
	if err.Pos.IsValid() {
		issue.Line = err.Pos.Line()
	}
	return issue
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, strategies []string) error {
	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true, Strategies: strategies})
	}

	fmt.Fprintf(formatter.Writer, "✓ Configuration valid (%d strategies)\n", len(strategies))
	for _, name := range strategies {
		fmt.Fprintf(formatter.Writer, "  - %s\n", name)
	}
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.IsJSON() {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		})
		if err != nil {
			return err
		}
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
