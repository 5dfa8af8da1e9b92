package store

import (
	"context"
	"fmt"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
)

// Run is one refinement as stored: the result plus the job it came from.
type Run struct {
	JobName string
	JobHash string
	// Error is the refinement error message for failed runs.
	Error  string
	Result *analysis.Result
}

// SaveRun writes a run with its iteration history and final parameters
// in one transaction. Returns inserted=false if the run ID was already
// stored; the stored run is left untouched.
func (s *Store) SaveRun(ctx context.Context, run Run) (inserted bool, err error) {
	if run.Result == nil {
		return false, fmt.Errorf("save run: nil result")
	}
	res := run.Result
	stats := res.Stats()

	keys, err := marshalStrings(res.FreeKeys())
	if err != nil {
		return false, fmt.Errorf("save run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("save run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, job_name, job_hash, status, started_at, finished_at, iterations, free_keys,
		 chi_square, reduced_chi_square, r_p, r_wp, r_exp, n_points, n_free, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		res.RunID(),
		run.JobName,
		run.JobHash,
		string(res.Status()),
		unixNano(res.Started()),
		unixNano(res.Finished()),
		res.Iterations(),
		keys,
		nullFloat(stats.ChiSquare),
		nullFloat(stats.ReducedChiSquare),
		nullFloat(stats.Rp),
		nullFloat(stats.Rwp),
		nullFloat(stats.Rexp),
		stats.N,
		stats.P,
		run.Error,
	)
	if err != nil {
		return false, fmt.Errorf("save run: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return false, fmt.Errorf("save run: rows affected: %w", err)
	} else if n == 0 {
		return false, nil
	}

	for seq, rec := range res.History() {
		values, err := marshalFloats(rec.Values)
		if err != nil {
			return false, fmt.Errorf("save run: iteration %d: %w", seq, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO iterations
			(run_id, seq, iteration, objective, reduced_chi_square, accepted, damping, param_values)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			res.RunID(), seq, rec.Iteration,
			nullFloat(rec.Objective), nullFloat(rec.ReducedChiSquare),
			rec.Accepted, rec.Damping, values,
		); err != nil {
			return false, fmt.Errorf("save run: iteration %d: %w", seq, err)
		}
	}

	for seq, p := range res.Parameters() {
		var sigma any
		if p.HasUncertainty {
			sigma = nullFloat(p.Uncertainty)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO parameters
			(run_id, seq, key, value, uncertainty, free, units)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			res.RunID(), seq, p.Key, p.Value, sigma, p.Free, p.Units,
		); err != nil {
			return false, fmt.Errorf("save run: parameter %s: %w", p.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("save run: commit: %w", err)
	}
	return true, nil
}
