package job

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/config"
	"github.com/easyscience/EasyDiffractionLib/internal/engine"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/testutil"
)

func ptr(v float64) *float64 { return &v }

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Weighting = ir.WeightingUniform
	return cfg
}

// cubicJob is a one-phase, one-experiment job with observed intensities
// simulated at a=5 when observed is nil.
func cubicJob(t *testing.T, name string, a float64, radiation ir.Radiation) *ir.JobSpec {
	t.Helper()
	spec := &ir.JobSpec{
		Name: name,
		Phases: []ir.PhaseSpec{{
			ID:         "cub",
			SpaceGroup: "P 1",
			Cell:       ir.CellSpec{LengthA: 5, LengthB: 5, LengthC: 5, AngleAlpha: 90, AngleBeta: 90, AngleGamma: 90},
			Sites:      []ir.AtomSiteSpec{{Label: "Fe1", TypeSymbol: "Fe", Occupancy: 1, BIso: 0.5}},
		}},
		Experiments: []ir.ExperimentSpec{experimentSpec("xrd", radiation)},
		Refine: ir.RefineSpec{
			Params: []ir.ParamSpec{{Key: "cub.cell.length_a", Min: ptr(4.5), Max: ptr(5.5)}},
			Constraints: []ir.ConstraintSpec{
				{Target: "cub.cell.length_b", Expr: "cub.cell.length_a"},
				{Target: "cub.cell.length_c", Expr: "cub.cell.length_a"},
			},
		},
	}
	spec.Experiments[0].Y = simulateObserved(t, spec, 0)
	for i := range spec.Phases {
		c := &spec.Phases[i].Cell
		c.LengthA, c.LengthB, c.LengthC = a, a, a
	}
	return spec
}

func experimentSpec(id string, radiation ir.Radiation) ir.ExperimentSpec {
	x := testutil.Grid(10, 40, 0.02)
	return ir.ExperimentSpec{
		ID:         id,
		Radiation:  radiation,
		Instrument: ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 1.0, ResolutionY: 0.3},
		Background: ir.BackgroundSpec{Kind: ir.BackgroundChebyshev, Coefficients: []float64{10}},
		Links:      []ir.LinkSpec{{Phase: "cub", Scale: 1}},
		X:          x,
		Y:          make([]float64, len(x)),
	}
}

// simulateObserved calculates experiment i of spec at its current values.
func simulateObserved(t *testing.T, spec *ir.JobSpec, i int) []float64 {
	t.Helper()
	bare := *spec
	bare.Refine = ir.RefineSpec{}
	j, err := Build(&bare, testConfig(), quiet())
	require.NoError(t, err)
	sims, err := j.Simulate()
	require.NoError(t, err)
	return sims[i].Calculated
}

func TestBuild_RegistersEveryParameter(t *testing.T) {
	j, err := Build(cubicJob(t, "cubic", 5.1, ir.RadiationXray), testConfig(), quiet())
	require.NoError(t, err)

	assert.Equal(t, []string{"cub.cell.length_a"}, j.Registry.FreeKeys())
	for _, key := range []string{
		"cub.atom_site.Fe1.fract_x",
		"cub.atom_site.Fe1.b_iso",
		"xrd.instrument.zero_shift",
		"xrd.background.c0",
		"xrd.linked_phases.cub.scale",
	} {
		_, ok := j.Registry.Get(key)
		assert.True(t, ok, key)
	}
	assert.Len(t, j.Hash, 64)
}

func TestBuild_SameSpecSameHash(t *testing.T) {
	spec := cubicJob(t, "cubic", 5.1, ir.RadiationXray)
	a, err := Build(spec, testConfig(), quiet())
	require.NoError(t, err)
	b, err := Build(spec, testConfig(), quiet())
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.Hash)
	assert.NotSame(t, a.Models[0], b.Models[0], "every build owns its models")
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.JobSpec)
		check  func(error) bool
	}{
		{
			name: "constraint cycle",
			mutate: func(s *ir.JobSpec) {
				s.Refine.Params = nil
				s.Refine.Constraints = []ir.ConstraintSpec{
					{Target: "cub.cell.length_a", Expr: "cub.cell.length_b * 1"},
					{Target: "cub.cell.length_b", Expr: "cub.cell.length_a"},
				}
			},
			check: ir.IsConstraintCycle,
		},
		{
			name:   "sigma length mismatch",
			mutate: func(s *ir.JobSpec) { s.Experiments[0].Sigma = []float64{1, 2, 3} },
			check:  ir.IsInvalidExperimentData,
		},
		{
			name:   "unknown space group",
			mutate: func(s *ir.JobSpec) { s.Phases[0].SpaceGroup = "Q 9" },
			check:  ir.IsModelValidation,
		},
		{
			name:   "unknown free key",
			mutate: func(s *ir.JobSpec) { s.Refine.Params = []ir.ParamSpec{{Key: "cub.cell.length_q"}} },
			check:  ir.IsModelValidation,
		},
		{
			name:   "free constrained parameter",
			mutate: func(s *ir.JobSpec) { s.Refine.Params = append(s.Refine.Params, ir.ParamSpec{Key: "cub.cell.length_b"}) },
			check:  ir.IsModelValidation,
		},
		{
			name:   "no experiments",
			mutate: func(s *ir.JobSpec) { s.Experiments = nil },
			check:  ir.IsModelValidation,
		},
		{
			name:   "uncertainty weighting without sigma",
			mutate: func(s *ir.JobSpec) { s.Refine.Weighting = ir.WeightingUncertainty },
			check:  ir.IsInvalidExperimentData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := cubicJob(t, "cubic", 5.1, ir.RadiationXray)
			tt.mutate(spec)
			_, err := Build(spec, testConfig(), quiet())
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestRefine_RecoversLatticeConstant(t *testing.T) {
	j, err := Build(cubicJob(t, "cubic", 5.05, ir.RadiationXray), testConfig(), quiet(),
		WithRunIDGenerator(engine.NewFixedGenerator("run-1")))
	require.NoError(t, err)

	result, err := j.Refine(context.Background())
	require.NoError(t, err)

	assert.Equal(t, analysis.StatusConverged, result.Status())
	assert.Equal(t, "run-1", result.RunID())
	a, ok := result.Parameter("cub.cell.length_a")
	require.True(t, ok)
	assert.InEpsilon(t, 5.0, a.Value, 1e-4)
}

func TestRefine_RecoversLatticeFromDistantStartWithNoise(t *testing.T) {
	spec := cubicJob(t, "cubic", 5.2, ir.RadiationXray)
	exp := &spec.Experiments[0]
	sigma := 0.01 * testutil.MaxOf(exp.Y)
	exp.Y = testutil.AddNoise(exp.Y, sigma, 7)
	exp.Sigma = testutil.Constant(len(exp.Y), sigma)

	j, err := Build(spec, config.Defaults(), quiet())
	require.NoError(t, err)
	result, err := j.Refine(context.Background())
	require.NoError(t, err)

	assert.Equal(t, analysis.StatusConverged, result.Status())
	a, ok := result.Parameter("cub.cell.length_a")
	require.True(t, ok)
	assert.InDelta(t, 5.0, a.Value, 0.01)
	assert.True(t, a.HasUncertainty)
	assert.Positive(t, a.Uncertainty)
}

func TestRefine_JointExperimentsShareThePhase(t *testing.T) {
	spec := cubicJob(t, "joint", 5.0, ir.RadiationXray)
	spec.Experiments = append(spec.Experiments, experimentSpec("npd", ir.RadiationNeutron))
	spec.Experiments[1].Y = simulateObserved(t, spec, 1)
	for i := range spec.Phases {
		c := &spec.Phases[i].Cell
		c.LengthA, c.LengthB, c.LengthC = 5.04, 5.04, 5.04
	}

	j, err := Build(spec, testConfig(), quiet())
	require.NoError(t, err)
	require.Len(t, j.Experiments, 2)

	result, err := j.Refine(context.Background())
	require.NoError(t, err)

	assert.Equal(t, analysis.StatusConverged, result.Status())
	assert.InEpsilon(t, 5.0, j.Models[0].Cell().A, 1e-4)
	assert.Equal(t, 2*len(spec.Experiments[0].X), result.Stats().N)
}

func TestSimulate(t *testing.T) {
	j, err := Build(cubicJob(t, "cubic", 5.0, ir.RadiationXray), testConfig(), quiet())
	require.NoError(t, err)

	sims, err := j.Simulate()
	require.NoError(t, err)
	require.Len(t, sims, 1)

	sim := sims[0]
	assert.Equal(t, "xrd", sim.Experiment)
	assert.Len(t, sim.Calculated, len(sim.X))
	assert.NotEmpty(t, sim.Peaks)
	for i, y := range sim.Calculated {
		assert.GreaterOrEqual(t, y, sim.Background[i]-1e-9)
	}
	// Observed data were simulated at the same values.
	assert.InDeltaSlice(t, sim.Observed, sim.Calculated, 1e-9)

	stats, err := j.Stats()
	require.NoError(t, err)
	assert.InDelta(t, 0, stats.ChiSquare, 1e-12)
}

func TestRunAll(t *testing.T) {
	good := cubicJob(t, "good", 5.03, ir.RadiationXray)
	bad := cubicJob(t, "bad", 5.03, ir.RadiationXray)
	bad.Experiments[0].Y = bad.Experiments[0].Y[:10]
	twin := cubicJob(t, "twin", 5.03, ir.RadiationXray)

	cfg := testConfig()
	cfg.Workers = 2
	outcomes := RunAll(context.Background(), []*ir.JobSpec{good, bad, twin}, cfg, quiet())
	require.Len(t, outcomes, 3)

	assert.Equal(t, "good", outcomes[0].Name)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, analysis.StatusConverged, outcomes[0].Result.Status())

	assert.Equal(t, "bad", outcomes[1].Name)
	assert.True(t, ir.IsInvalidExperimentData(outcomes[1].Err))
	assert.Nil(t, outcomes[1].Result)

	require.NoError(t, outcomes[2].Err)
	assert.Equal(t, outcomes[0].Result.History(), outcomes[2].Result.History(),
		"identical jobs refined in parallel give identical histories")
}

func TestRunAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := RunAll(ctx, []*ir.JobSpec{cubicJob(t, "c", 5.03, ir.RadiationXray)}, testConfig(), quiet())
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, analysis.StatusCancelled, outcomes[0].Result.Status())
}
