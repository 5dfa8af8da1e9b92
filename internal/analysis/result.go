package analysis

import (
	"slices"
	"time"
)

// Status is the terminal state of a refinement.
type Status string

const (
	StatusConverged     Status = "converged"
	StatusMaxIterations Status = "max_iterations"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// Record is one optimizer iteration. Every trial step produces a record,
// accepted or not.
type Record struct {
	Iteration int `json:"iteration"`
	// Values is the free-parameter vector evaluated at this iteration.
	Values []float64 `json:"values"`
	// Objective is the weighted residual sum Σ w(yobs − ycalc)².
	Objective        float64 `json:"objective"`
	ReducedChiSquare float64 `json:"reduced_chi_square"`
	Accepted         bool    `json:"accepted"`
	Damping          float64 `json:"damping"`
}

// ParamValue is a final parameter value with its registry key.
type ParamValue struct {
	Key            string  `json:"key"`
	Value          float64 `json:"value"`
	Uncertainty    float64 `json:"uncertainty,omitempty"`
	HasUncertainty bool    `json:"has_uncertainty"`
	Free           bool    `json:"free"`
	Units          string  `json:"units,omitempty"`
}

// Recorder accumulates iteration records during a run. Not safe for
// concurrent use.
type Recorder struct {
	runID   string
	keys    []string
	started time.Time
	records []Record
}

// NewRecorder starts recording for the given free-parameter keys.
func NewRecorder(runID string, freeKeys []string, started time.Time) *Recorder {
	return &Recorder{runID: runID, keys: slices.Clone(freeKeys), started: started}
}

// Add appends one iteration. The value slice is copied.
func (r *Recorder) Add(rec Record) {
	rec.Values = slices.Clone(rec.Values)
	r.records = append(r.records, rec)
}

// Len returns the number of recorded iterations.
func (r *Recorder) Len() int { return len(r.records) }

// Finalize freezes the history into a Result.
func (r *Recorder) Finalize(status Status, params []ParamValue, fit Stats, finished time.Time) *Result {
	return &Result{
		runID:    r.runID,
		keys:     slices.Clone(r.keys),
		started:  r.started,
		finished: finished,
		status:   status,
		records:  slices.Clone(r.records),
		params:   slices.Clone(params),
		stats:    fit,
	}
}

// Result is the immutable outcome of a refinement. Accessors return copies.
type Result struct {
	runID    string
	keys     []string
	started  time.Time
	finished time.Time
	status   Status
	records  []Record
	params   []ParamValue
	stats    Stats
}

// RunID returns the identifier of the run.
func (r *Result) RunID() string { return r.runID }

// Status returns the terminal status.
func (r *Result) Status() Status { return r.status }

// FreeKeys returns the keys of the free parameters, in vector order.
func (r *Result) FreeKeys() []string { return slices.Clone(r.keys) }

// History returns every iteration record in order.
func (r *Result) History() []Record {
	out := make([]Record, len(r.records))
	for i, rec := range r.records {
		rec.Values = slices.Clone(rec.Values)
		out[i] = rec
	}
	return out
}

// Accepted returns only the accepted iterations.
func (r *Result) Accepted() []Record {
	var out []Record
	for _, rec := range r.records {
		if rec.Accepted {
			rec.Values = slices.Clone(rec.Values)
			out = append(out, rec)
		}
	}
	return out
}

// Parameters returns the final values of every registered parameter.
func (r *Result) Parameters() []ParamValue { return slices.Clone(r.params) }

// Parameter returns the final value stored under key.
func (r *Result) Parameter(key string) (ParamValue, bool) {
	for _, p := range r.params {
		if p.Key == key {
			return p, true
		}
	}
	return ParamValue{}, false
}

// Stats returns the goodness-of-fit statistics.
func (r *Result) Stats() Stats { return r.stats }

// Iterations returns the number of recorded iterations.
func (r *Result) Iterations() int { return len(r.records) }

// Started returns when the run began.
func (r *Result) Started() time.Time { return r.started }

// Finished returns when the run ended.
func (r *Result) Finished() time.Time { return r.finished }
