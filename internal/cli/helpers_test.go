package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/compiler"
	"github.com/easyscience/EasyDiffractionLib/internal/config"
	"github.com/easyscience/EasyDiffractionLib/internal/job"
	"github.com/easyscience/EasyDiffractionLib/internal/testutil"
)

// cubicJob refines the lattice of a cubic iron phase from cubic.xye,
// starting 1% off the value the data was simulated with.
const cubicJob = `
job: cubic: {
	phases: cub: {
		space_group: "P 1"
		cell: length_a: 5.05
		atom_sites: Fe1: {type_symbol: "Fe", b_iso: 0.5}
	}
	experiments: xrd: {
		radiation: "xray"
		instrument: {wavelength: 1.5406, resolution_w: 1.0, resolution_y: 0.3}
		background: {type: "chebyshev", coefficients: [10]}
		linked_phases: cub: 1.0
		data_file: "cubic.xye"
	}
	refine: {
		free: [{key: "cub.cell.length_a", min: 4.5, max: 5.5}]
		constraints: {
			"cub.cell.length_b": "cub.cell.length_a"
			"cub.cell.length_c": "cub.cell.length_a"
		}
	}
}
`

// noDataJob has no observed data; it can only be simulated on a grid.
const noDataJob = `
job: bare: {
	phases: cub: {
		space_group: "P 1"
		cell: length_a: 4.0
		atom_sites: O1: {type_symbol: "O"}
	}
	experiments: npd: {
		radiation: "neutron"
		instrument: {wavelength: 1.8, resolution_w: 0.5}
		linked_phases: cub: 1.0
	}
}
`

// invalidJob compiles but breaks structural rules.
const invalidJob = `
job: broken: {
	phases: cub: {
		space_group: "P 1"
		cell: length_a: 4.0
	}
	experiments: xrd: {
		radiation: "xray"
		instrument: wavelength: 1.54
		linked_phases: nowhere: 1.0
		x: [10, 10.1]
		y: [1, 2]
	}
}
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeXYE(t *testing.T, path string, x, y, sigma []float64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# x y sigma")
	for i := range x {
		fmt.Fprintf(w, "%.4f %.17g %.17g\n", x[i], y[i], sigma[i])
	}
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())
}

// writeRefineFixture writes cubicJob with noisy data simulated at
// a = 5.0 and returns the job file path.
func writeRefineFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	grid := testutil.Grid(10, 40, 0.02)
	dataPath := filepath.Join(dir, "cubic.xye")
	ones := testutil.Constant(len(grid), 1)

	// Placeholder data so the job loads; replaced below.
	writeXYE(t, dataPath, grid, make([]float64, len(grid)), ones)
	jobPath := writeFile(t, dir, "jobs.cue", cubicJob)

	loaded, errs := compiler.LoadJobs(jobPath, compiler.LoadModeFailFast)
	require.Empty(t, errs)
	truthJob, err := job.Build(loaded.Jobs[0], config.Defaults())
	require.NoError(t, err)
	a, ok := truthJob.Registry.Get("cub.cell.length_a")
	require.True(t, ok)
	a.Set(5.0)
	truthJob.Registry.Resolve()

	sims, err := truthJob.Simulate()
	require.NoError(t, err)
	y := sims[0].Calculated
	sigma := 0.01 * testutil.MaxOf(y)
	writeXYE(t, dataPath, grid, testutil.AddNoise(y, sigma, 7), testutil.Constant(len(grid), sigma))
	return jobPath
}

// run executes cmd with args and returns stdout.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
