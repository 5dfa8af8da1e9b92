package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easyscience/EasyDiffractionLib/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Jobs   int                        `json:"jobs"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <jobs-path>",
		Short: "Validate job files without refining",
		Long: `Validate CUE job definitions without refining them.

Compiles every job and checks it against the structural rules: known
space groups, phase links, observed data, parameter keys, bounds and
constraint cycles. All problems are reported, not only the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, jobsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	validationErrors, jobs, err := ValidateJobs(jobsPath)
	if err != nil {
		code, message := parseLoadError(err)
		return outputValidateError(formatter, code, message)
	}
	formatter.VerboseLog("Validated %d job(s) in %s", jobs, jobsPath)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, jobs, validationErrors)
	}
	return outputValidateSuccess(formatter, jobs)
}

// ValidateJobs compiles and validates every job under path. Compile and
// data errors are returned as validation errors alongside the structural
// ones; err is set only when nothing could be loaded.
func ValidateJobs(path string) (errs []compiler.ValidationError, jobs int, err error) {
	loaded, loadErrors := compiler.LoadJobs(path, compiler.LoadModeCollectAll)
	if loaded == nil && len(loadErrors) > 0 {
		return nil, 0, loadErrors[0]
	}

	for _, le := range loadErrors {
		var loadErr *compiler.LoadError
		if errors.As(le, &loadErr) {
			line := 0
			if loadErr.Pos.IsValid() {
				line = loadErr.Pos.Line()
			}
			errs = append(errs, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    line,
			})
			continue
		}
		errs = append(errs, compiler.ValidationError{Field: "load", Message: le.Error(), Code: compiler.ErrCodeGeneric})
	}

	for _, spec := range loaded.Jobs {
		for _, ve := range compiler.Validate(spec) {
			ve.Field = "job." + spec.Name + "." + ve.Field
			errs = append(errs, ve)
		}
	}
	return errs, len(loaded.Jobs), nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, jobs int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Jobs: jobs})
	}

	fmt.Fprintf(formatter.Writer, "✓ All %d job(s) valid\n", jobs)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Unreadable input is a command-level error (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, jobs int, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Jobs: jobs, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
