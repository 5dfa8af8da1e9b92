package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/easyscience/EasyDiffractionLib/internal/compiler"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled jobs.
type CompilationResult struct {
	Jobs []JobSummary `json:"jobs"`
}

// JobSummary describes one compiled job.
type JobSummary struct {
	Name        string   `json:"name"`
	Hash        string   `json:"hash"`
	Phases      []string `json:"phases"`
	Experiments []string `json:"experiments"`
	Points      int      `json:"points"`
	Free        []string `json:"free"`
	Constraints int      `json:"constraints"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <jobs-path>",
		Short: "Compile CUE job files to canonical job specs",
		Long: `Compile CUE job definitions into job specs.

The compiler reads every job: <name>: {...} definition from a directory
of CUE files or a single file, resolves observed data files and prints a
summary with each job's content hash. With --output the full specs are
written as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, jobsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, errs := compiler.LoadJobs(jobsPath, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return loadFailure(formatter, errs)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, jobsPath)

	result := CompilationResult{Jobs: make([]JobSummary, 0, len(loaded.Jobs))}
	for _, spec := range loaded.Jobs {
		formatter.VerboseLog("Compiling job: %s", spec.Name)
		summary, err := summarizeJob(spec)
		if err != nil {
			return outputCompileError(formatter, compiler.ErrCodeCompileFailed, err.Error())
		}
		result.Jobs = append(result.Jobs, summary)
	}

	if opts.Output != "" {
		if err := writeSpecsToFile(loaded.Jobs, opts.Output); err != nil {
			return outputCompileError(formatter, compiler.ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func summarizeJob(spec *ir.JobSpec) (JobSummary, error) {
	hash, err := ir.JobHash(spec)
	if err != nil {
		return JobSummary{}, fmt.Errorf("job %q: %w", spec.Name, err)
	}
	s := JobSummary{
		Name:        spec.Name,
		Hash:        hash,
		Phases:      make([]string, len(spec.Phases)),
		Experiments: make([]string, len(spec.Experiments)),
		Free:        make([]string, len(spec.Refine.Params)),
		Constraints: len(spec.Refine.Constraints),
	}
	for i, p := range spec.Phases {
		s.Phases[i] = p.ID
	}
	for i, e := range spec.Experiments {
		s.Experiments[i] = e.ID
		s.Points += len(e.X)
	}
	for i, p := range spec.Refine.Params {
		s.Free[i] = p.Key
	}
	return s, nil
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d job(s)\n\n", len(result.Jobs))
	for _, j := range result.Jobs {
		fmt.Fprintf(w, "  %s [%s]: %d phase(s), %d experiment(s), %d point(s), %d free, %d constrained\n",
			j.Name, j.Hash[:12], len(j.Phases), len(j.Experiments), j.Points, len(j.Free), j.Constraints)
	}
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote job specs to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// writeSpecsToFile writes the compiled jobs as indented JSON. Canonical
// JSON without indentation is used only for hashing.
func writeSpecsToFile(specs []*ir.JobSpec, filename string) error {
	data, err := json.MarshalIndent(specs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling jobs: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
