package job

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/config"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// Outcome is the result of one job in RunAll.
type Outcome struct {
	Name   string
	Job    *Job
	Result *analysis.Result
	// Err is a build error (Job and Result nil) or the refinement error.
	Err error
}

// RunAll builds and refines independent jobs in parallel, at most
// cfg.Workers at a time. Outcomes keep the order of specs. A failing job
// does not stop the others; cancelling ctx cancels every running
// refinement at its next iteration boundary.
func RunAll(ctx context.Context, specs []*ir.JobSpec, cfg config.Config, opts ...Option) []Outcome {
	// One cache for all jobs unless the caller supplied one.
	s := newSettings(cfg, opts)
	opts = append(opts, WithCache(s.cache))

	outcomes := make([]Outcome, len(specs))
	var g errgroup.Group
	g.SetLimit(max(cfg.Workers, 1))

	for i, spec := range specs {
		g.Go(func() error {
			out := Outcome{Name: spec.Name}
			j, err := Build(spec, cfg, opts...)
			if err != nil {
				out.Err = err
				outcomes[i] = out
				return nil
			}
			out.Job = j
			out.Result, out.Err = j.Refine(ctx)
			outcomes[i] = out
			return nil // job errors are reported per outcome
		})
	}
	_ = g.Wait()
	return outcomes
}
