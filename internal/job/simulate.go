package job

import (
	"fmt"
	"slices"

	"github.com/easyscience/EasyDiffractionLib/internal/crystal"
	"github.com/easyscience/EasyDiffractionLib/internal/pattern"
)

// Simulation is the calculated pattern of one experiment.
type Simulation struct {
	Experiment string
	X          []float64
	Observed   []float64
	Calculated []float64
	Background []float64
	Peaks      []pattern.Peak
}

// Simulate calculates every experiment at the current parameter values
// without refining.
func (j *Job) Simulate() ([]Simulation, error) {
	models := make(map[string]*crystal.Model, len(j.Models))
	for _, m := range j.Models {
		models[m.ID] = m
	}

	out := make([]Simulation, len(j.Experiments))
	for i, e := range j.Experiments {
		phases := make([]pattern.Phase, len(e.Links))
		for k, l := range e.Links {
			phases[k] = pattern.Phase{Model: models[l.Phase], Scale: l.Scale.Value}
		}
		calc, err := j.calc.Calculate(phases, e.Instrument, e.Background, e.X)
		if err != nil {
			return nil, fmt.Errorf("experiment %q: %w", e.ID, err)
		}
		peaks, err := j.calc.Peaks(phases, e.Instrument, e.X)
		if err != nil {
			return nil, fmt.Errorf("experiment %q: %w", e.ID, err)
		}
		out[i] = Simulation{
			Experiment: e.ID,
			X:          slices.Clone(e.X),
			Observed:   slices.Clone(e.Y),
			Calculated: calc,
			Background: e.Background.Evaluate(e.X),
			Peaks:      peaks,
		}
	}
	return out, nil
}
