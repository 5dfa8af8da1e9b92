package cli

import (
	"errors"
	"fmt"

	"github.com/easyscience/EasyDiffractionLib/internal/compiler"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// loadFailure reports load errors through the formatter and returns the
// exit error every job-reading command ends with.
func loadFailure(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("loading jobs failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Loading jobs failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := parseLoadError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("loading jobs failed with %d error(s)", len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.ErrCodeCompileFailed, compileErr.Field + ": " + compileErr.Message
	}
	if code := ir.CodeOf(err); code != "" {
		return string(code), err.Error()
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// loadJobs loads path fail-fast and keeps the jobs named in only, or all
// jobs when only is empty.
func loadJobs(formatter *OutputFormatter, path string, only []string) ([]*ir.JobSpec, error) {
	loaded, errs := compiler.LoadJobs(path, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, loadFailure(formatter, errs)
	}
	formatter.VerboseLog("Loaded %d job(s) from %d CUE file(s) in %s", len(loaded.Jobs), loaded.FileCount, path)

	if len(only) == 0 {
		return loaded.Jobs, nil
	}
	specs := make([]*ir.JobSpec, 0, len(only))
	for _, name := range only {
		spec, ok := loaded.Job(name)
		if !ok {
			return nil, loadFailure(formatter, []error{&compiler.LoadError{
				Code:    compiler.ErrCodeNoJobs,
				Message: fmt.Sprintf("job %q not found in %s", name, path),
			}})
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// validationFailure converts structural validation errors into load
// errors so they print with the same layout.
func validationFailure(formatter *OutputFormatter, spec *ir.JobSpec) error {
	verrs := compiler.Validate(spec)
	if len(verrs) == 0 {
		return nil
	}
	errs := make([]error, len(verrs))
	for i, ve := range verrs {
		errs[i] = &compiler.LoadError{
			Code:    ve.Code,
			Message: fmt.Sprintf("job.%s.%s: %s", spec.Name, ve.Field, ve.Message),
		}
	}
	return loadFailure(formatter, errs)
}
