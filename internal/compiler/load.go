package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/easyscience/EasyDiffractionLib/internal/experiment"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// Load error codes (E001-E099), shared by every command that reads jobs.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeCompileFailed = "E008" // Job does not compile to a JobSpec
	ErrCodeDataFile      = "E009" // Observed data file missing or malformed
	ErrCodeNoJobs        = "E010" // No job definitions found
)

// LoadMode controls how errors are handled during job loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the jobs loaded from a directory or file.
type LoadResult struct {
	Jobs      []*ir.JobSpec
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// Job returns the loaded job with the given name.
func (r *LoadResult) Job(name string) (*ir.JobSpec, bool) {
	for _, j := range r.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// LoadError represents an error that occurred during job loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadJobs loads every `job: <name>: {...}` definition from a directory of
// CUE files, or from a single .cue file. Data files named by experiments
// are read relative to the CUE file that names them.
//
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadJobs(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("jobs path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing jobs path: %v", err)}}
	}

	dir := path
	cueFiles := []string{path}
	if info.IsDir() {
		cueFiles, err = FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}}
		}
		dir = filepath.Dir(path)
	}

	value, loadErr := buildFiles(cuecontext.New(), cueFiles)
	if loadErr != nil {
		return nil, []error{loadErr}
	}

	result := &LoadResult{CUEValue: value, FileCount: len(cueFiles)}

	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	jobsVal := value.LookupPath(cue.ParsePath("job"))
	if !jobsVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoJobs, Message: "no job definitions found"}}
	}
	iter, err := jobsVal.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating jobs: %v", err)}}
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		spec, err := CompileJob(iter.Value())
		if err != nil {
			if fail(convertCompileError(err, ErrCodeCompileFailed, "job."+name)) {
				return result, errs
			}
			continue
		}
		base := dir
		if fn := iter.Value().Pos().Filename(); fn != "" {
			base = filepath.Dir(fn)
		}
		if err := ResolveDataFiles(spec, base); err != nil {
			if fail(&LoadError{Code: ErrCodeDataFile, Message: fmt.Sprintf("job.%s: %v", name, err), Pos: iter.Value().Pos()}) {
				return result, errs
			}
			continue
		}
		result.Jobs = append(result.Jobs, spec)
	}

	if len(result.Jobs) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoJobs, Message: "no job definitions found"})
	}
	return result, errs
}

// ResolveDataFiles fills X, Y and Sigma of every experiment that names a
// data file. Relative paths are taken from base.
func ResolveDataFiles(spec *ir.JobSpec, base string) error {
	for i := range spec.Experiments {
		e := &spec.Experiments[i]
		if e.DataFile == "" {
			continue
		}
		path := e.DataFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("experiment %q: %w", e.ID, err)
		}
		e.X, e.Y, e.Sigma, err = experiment.ReadXYE(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("experiment %q: %s: %w", e.ID, path, err)
		}
	}
	return nil
}

// buildFiles loads the named files and unifies them into one value. Files
// in one directory form a single instance, so a package clause is optional;
// instances from different directories are unified.
func buildFiles(ctx *cue.Context, files []string) (cue.Value, *LoadError) {
	var dirs []string
	byDir := make(map[string][]string)
	for _, f := range files {
		d := filepath.Dir(f)
		if _, ok := byDir[d]; !ok {
			dirs = append(dirs, d)
		}
		byDir[d] = append(byDir[d], "./"+filepath.Base(f))
	}
	sort.Strings(dirs)

	var value cue.Value
	for i, d := range dirs {
		instances := load.Instances(byDir[d], &load.Config{Dir: d})
		if len(instances) == 0 {
			return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
		}
		inst := instances[0]
		if inst.Err != nil {
			return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
		}
		v := ctx.BuildInstance(inst)
		if err := v.Err(); err != nil {
			return cue.Value{}, convertCompileError(formatCUEError(err), ErrCodeBuildFailed, "build")
		}
		if i == 0 {
			value = v
			continue
		}
		value = value.Unify(v)
	}
	if err := value.Err(); err != nil {
		return cue.Value{}, convertCompileError(formatCUEError(err), ErrCodeBuildFailed, "build")
	}
	return value, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, code, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    code,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
