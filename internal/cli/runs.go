package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/store"
)

// StatsView is analysis.Stats with JSON-safe floats.
type StatsView struct {
	ChiSquare        Float `json:"chi_square"`
	ReducedChiSquare Float `json:"reduced_chi_square"`
	Rp               Float `json:"r_p"`
	Rwp              Float `json:"r_wp"`
	Rexp             Float `json:"r_exp"`
	N                int   `json:"n_points"`
	P                int   `json:"n_free"`
}

// ParamView is one final parameter value.
type ParamView struct {
	Key         string `json:"key"`
	Value       Float  `json:"value"`
	Uncertainty *Float `json:"uncertainty,omitempty"`
	Free        bool   `json:"free"`
	Units       string `json:"units,omitempty"`
}

// IterationView is one optimizer step.
type IterationView struct {
	Iteration        int     `json:"iteration"`
	Values           []Float `json:"values"`
	Objective        Float   `json:"objective"`
	ReducedChiSquare Float   `json:"reduced_chi_square"`
	Accepted         bool    `json:"accepted"`
	Damping          Float   `json:"damping"`
}

// RunView is a refinement run as reported by refine, history and show.
type RunView struct {
	RunID      string          `json:"run_id"`
	Job        string          `json:"job"`
	JobHash    string          `json:"job_hash,omitempty"`
	Status     analysis.Status `json:"status"`
	Started    time.Time       `json:"started"`
	Finished   time.Time       `json:"finished"`
	Iterations int             `json:"iterations"`
	FreeKeys   []string        `json:"free_keys"`
	Stats      StatsView       `json:"stats"`
	Parameters []ParamView     `json:"parameters,omitempty"`
	History    []IterationView `json:"history,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func statsView(s analysis.Stats) StatsView {
	return StatsView{
		ChiSquare:        Float(s.ChiSquare),
		ReducedChiSquare: Float(s.ReducedChiSquare),
		Rp:               Float(s.Rp),
		Rwp:              Float(s.Rwp),
		Rexp:             Float(s.Rexp),
		N:                s.N,
		P:                s.P,
	}
}

func paramViews(params []analysis.ParamValue) []ParamView {
	out := make([]ParamView, len(params))
	for i, p := range params {
		v := ParamView{Key: p.Key, Value: Float(p.Value), Free: p.Free, Units: p.Units}
		if p.HasUncertainty {
			u := Float(p.Uncertainty)
			v.Uncertainty = &u
		}
		out[i] = v
	}
	return out
}

func iterationViews(records []analysis.Record) []IterationView {
	out := make([]IterationView, len(records))
	for i, r := range records {
		out[i] = IterationView{
			Iteration:        r.Iteration,
			Values:           floats(r.Values),
			Objective:        Float(r.Objective),
			ReducedChiSquare: Float(r.ReducedChiSquare),
			Accepted:         r.Accepted,
			Damping:          Float(r.Damping),
		}
	}
	return out
}

// runView flattens a result. History is included only when withHistory
// is set.
func runView(job, hash, errMsg string, res *analysis.Result, withHistory bool) RunView {
	v := RunView{
		RunID:      res.RunID(),
		Job:        job,
		JobHash:    hash,
		Status:     res.Status(),
		Started:    res.Started(),
		Finished:   res.Finished(),
		Iterations: res.Iterations(),
		FreeKeys:   res.FreeKeys(),
		Stats:      statsView(res.Stats()),
		Parameters: paramViews(res.Parameters()),
		Error:      errMsg,
	}
	if withHistory {
		v.History = iterationViews(res.History())
	}
	return v
}

func summaryView(s store.RunSummary) RunView {
	return RunView{
		RunID:      s.ID,
		Job:        s.JobName,
		JobHash:    s.JobHash,
		Status:     s.Status,
		Started:    s.Started,
		Finished:   s.Finished,
		Iterations: s.Iterations,
		FreeKeys:   s.FreeKeys,
		Stats:      statsView(s.Stats),
		Error:      s.Error,
	}
}

// statusMark is the text-mode marker for a terminal status.
func statusMark(s analysis.Status) string {
	if s == analysis.StatusConverged {
		return "✓"
	}
	return "✗"
}

// writeStats prints the fit statistics on one line.
func writeStats(w io.Writer, s StatsView) {
	fmt.Fprintf(w, "  χ²ᵣ = %s  Rp = %s  Rwp = %s  Rexp = %s  (N = %d, P = %d)\n",
		formatFloat(float64(s.ReducedChiSquare), "%.4g"),
		formatFloat(float64(s.Rp), "%.4f"),
		formatFloat(float64(s.Rwp), "%.4f"),
		formatFloat(float64(s.Rexp), "%.4f"),
		s.N, s.P)
}

// writeParameters prints free parameters, with uncertainties when known.
func writeParameters(w io.Writer, params []ParamView) {
	for _, p := range params {
		if !p.Free {
			continue
		}
		if p.Uncertainty != nil {
			fmt.Fprintf(w, "    %s = %s ± %s %s\n", p.Key,
				formatFloat(float64(p.Value), "%.6g"), formatFloat(float64(*p.Uncertainty), "%.2g"), p.Units)
		} else {
			fmt.Fprintf(w, "    %s = %s %s\n", p.Key, formatFloat(float64(p.Value), "%.6g"), p.Units)
		}
	}
}
