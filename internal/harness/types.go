package harness

import (
	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Job is the name of the refined job.
	Job string `json:"job"`

	// RunID is the run ID stamped on the refinement.
	RunID string `json:"run_id"`

	// Status is the terminal refinement status.
	Status analysis.Status `json:"status"`

	// RefineError is the refinement error message for failed runs.
	RefineError string `json:"refine_error,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Refined is the result returned by the optimizer.
	Refined *analysis.Result `json:"-"`

	// Stored is the same run read back from the in-memory store.
	Stored *analysis.Result `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
