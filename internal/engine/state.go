package engine

import (
	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
)

// State is a phase of the optimizer loop.
type State int

const (
	StateInitializing State = iota
	StateEvaluating
	StateStepAccepted
	StateStepRejected
	StateConverged
	StateMaxIterationsReached
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateInitializing:         "initializing",
	StateEvaluating:           "evaluating",
	StateStepAccepted:         "step_accepted",
	StateStepRejected:         "step_rejected",
	StateConverged:            "converged",
	StateMaxIterationsReached: "max_iterations_reached",
	StateFailed:               "failed",
	StateCancelled:            "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the loop stops in s.
func (s State) Terminal() bool {
	switch s {
	case StateConverged, StateMaxIterationsReached, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Status maps a terminal state to the result status. Non-terminal states
// map to failed.
func (s State) Status() analysis.Status {
	switch s {
	case StateConverged:
		return analysis.StatusConverged
	case StateMaxIterationsReached:
		return analysis.StatusMaxIterations
	case StateCancelled:
		return analysis.StatusCancelled
	default:
		return analysis.StatusFailed
	}
}

// Limits are the stopping thresholds of a run.
type Limits struct {
	MaxIterations   int
	Tolerance       float64
	Patience        int
	SingularRetries int
}

// Progress is the bookkeeping carried between transitions.
type Progress struct {
	Iteration int
	// Stall counts consecutive iterations without meaningful improvement.
	Stall    int
	Damping  float64
	Singular int
}

// Trial summarizes one solve-and-evaluate attempt.
type Trial struct {
	// Previous is the last accepted objective.
	Previous float64
	// Objective is the trial objective; unused when Singular is set.
	Objective float64
	// StepNorm and ParamNorm are ‖δ‖ and ‖x‖ of the applied step.
	StepNorm  float64
	ParamNorm float64
	Singular  bool
	Diverged  bool
}

const (
	minDamping = 1e-12
	maxDamping = 1e12
)

// Start decides the first state from the initial objective.
func Start(objective float64, diverged bool) State {
	switch {
	case diverged:
		return StateFailed
	case objective == 0:
		return StateConverged
	default:
		return StateEvaluating
	}
}

// AfterTrial moves out of StateEvaluating.
//
// A singular solve raises the damping without consuming an iteration; past
// the retry budget the run fails. A decrease in objective accepts the step
// and lowers the damping. Anything else rejects it and raises the damping.
func AfterTrial(p Progress, t Trial, lim Limits) (State, Progress) {
	if t.Diverged {
		p.Iteration++
		return StateFailed, p
	}
	if t.Singular {
		p.Singular++
		if p.Singular > lim.SingularRetries {
			return StateFailed, p
		}
		p.Damping = raise(p.Damping)
		return StateEvaluating, p
	}

	p.Iteration++
	p.Singular = 0
	if t.Objective < t.Previous {
		p.Damping = lower(p.Damping)
		if (t.Previous-t.Objective)/t.Previous < lim.Tolerance {
			p.Stall++
		} else {
			p.Stall = 0
		}
		return StateStepAccepted, p
	}

	p.Damping = raise(p.Damping)
	if negligible(t.StepNorm, t.ParamNorm, lim.Tolerance) {
		p.Stall++
	}
	return StateStepRejected, p
}

// Next leaves StateStepAccepted or StateStepRejected. objective is the last
// accepted value.
func Next(p Progress, objective float64, lim Limits) State {
	switch {
	case objective == 0:
		return StateConverged
	case p.Stall >= lim.Patience:
		return StateConverged
	case p.Iteration >= lim.MaxIterations:
		return StateMaxIterationsReached
	default:
		return StateEvaluating
	}
}

// Cancel moves any non-terminal state to StateCancelled.
func Cancel(s State) State {
	if s.Terminal() {
		return s
	}
	return StateCancelled
}

func negligible(step, x, tol float64) bool {
	return step <= tol*(x+tol)
}

func raise(d float64) float64 {
	return min(d*10, maxDamping)
}

func lower(d float64) float64 {
	return max(d/10, minDamping)
}
