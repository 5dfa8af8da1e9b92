package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/queryir"
	"github.com/easyscience/EasyDiffractionLib/internal/querysql"
)

// runColumns is the column list shared by LoadRun and ListRuns.
var runColumns = []string{
	"id", "job_name", "job_hash", "status", "started_at", "finished_at",
	"iterations", "free_keys", "chi_square", "reduced_chi_square",
	"r_p", "r_wp", "r_exp", "n_points", "n_free", "error",
}

// historySchema is the set of fields history queries may reference.
var historySchema = queryir.Schema{"runs": runColumns}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID         string          `json:"id"`
	JobName    string          `json:"job_name"`
	JobHash    string          `json:"job_hash"`
	Status     analysis.Status `json:"status"`
	Started    time.Time       `json:"started"`
	Finished   time.Time       `json:"finished"`
	Iterations int             `json:"iterations"`
	FreeKeys   []string        `json:"free_keys"`
	Stats      analysis.Stats  `json:"stats"`
	Error      string          `json:"error,omitempty"`
}

// RunFilter selects runs for ListRuns. Zero fields do not filter.
type RunFilter struct {
	JobName string
	JobHash string
	Status  analysis.Status
	// MaxReducedChiSquare keeps runs with reduced χ² at or below it.
	MaxReducedChiSquare float64
	Since               time.Time
	// Limit caps the number of runs; the newest are returned first.
	Limit int
}

// query builds the IR for f.
func (f RunFilter) query() queryir.Select {
	var preds []queryir.Predicate
	if f.JobName != "" {
		preds = append(preds, queryir.Equals{Field: "job_name", Value: ir.IRString(f.JobName)})
	}
	if f.JobHash != "" {
		preds = append(preds, queryir.Equals{Field: "job_hash", Value: ir.IRString(f.JobHash)})
	}
	if f.Status != "" {
		preds = append(preds, queryir.Equals{Field: "status", Value: ir.IRString(f.Status)})
	}
	if f.MaxReducedChiSquare > 0 {
		preds = append(preds, queryir.Compare{Field: "reduced_chi_square", Op: queryir.OpLessEqual, Value: ir.IRFloat(f.MaxReducedChiSquare)})
	}
	if !f.Since.IsZero() {
		preds = append(preds, queryir.Compare{Field: "started_at", Op: queryir.OpGreaterEqual, Value: ir.IRInt(unixNano(f.Since))})
	}
	return queryir.Select{
		From:    "runs",
		Columns: runColumns,
		Filter:  queryir.Conj(preds...),
		OrderBy: []queryir.Order{{Field: "started_at", Desc: true}},
		Limit:   f.Limit,
	}
}

// ListRuns returns run summaries matching f, newest first, ties broken
// by run ID. Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]RunSummary, error) {
	q := f.query()
	if errs := queryir.Validate(q, historySchema); len(errs) > 0 {
		return nil, fmt.Errorf("list runs: %w", errors.Join(errs...))
	}
	text, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, text, params...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		sum, err := scanRunSummary(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LoadRun reads a full run back, history and parameters included.
// Returns ErrRunNotFound for an unknown ID.
func (s *Store) LoadRun(ctx context.Context, id string) (*Run, error) {
	text, params, err := querysql.NewSQLCompiler().Compile(queryir.Select{
		From:    "runs",
		Columns: runColumns,
		Filter:  queryir.Equals{Field: "id", Value: ir.IRString(id)},
	})
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	sum, err := scanRunSummary(s.db.QueryRowContext(ctx, text, params...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load run %q: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	rec := analysis.NewRecorder(sum.ID, sum.FreeKeys, sum.Started)
	if err := s.readIterations(ctx, id, rec); err != nil {
		return nil, err
	}
	values, err := s.readParameters(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Run{
		JobName: sum.JobName,
		JobHash: sum.JobHash,
		Error:   sum.Error,
		Result:  rec.Finalize(sum.Status, values, sum.Stats, sum.Finished),
	}, nil
}

func (s *Store) readIterations(ctx context.Context, runID string, rec *analysis.Recorder) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, objective, reduced_chi_square, accepted, damping, param_values
		FROM iterations
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return fmt.Errorf("query iterations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r         analysis.Record
			objective sql.NullFloat64
			reduced   sql.NullFloat64
			values    string
		)
		if err := rows.Scan(&r.Iteration, &objective, &reduced, &r.Accepted, &r.Damping, &values); err != nil {
			return fmt.Errorf("scan iteration: %w", err)
		}
		r.Objective = floatOrNaN(objective)
		r.ReducedChiSquare = floatOrNaN(reduced)
		if r.Values, err = unmarshalFloats(values); err != nil {
			return err
		}
		rec.Add(r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate iterations: %w", err)
	}
	return nil
}

func (s *Store) readParameters(ctx context.Context, runID string) ([]analysis.ParamValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, uncertainty, free, units
		FROM parameters
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query parameters: %w", err)
	}
	defer rows.Close()

	var params []analysis.ParamValue
	for rows.Next() {
		var (
			p     analysis.ParamValue
			sigma sql.NullFloat64
		)
		if err := rows.Scan(&p.Key, &p.Value, &sigma, &p.Free, &p.Units); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		p.Uncertainty, p.HasUncertainty = sigma.Float64, sigma.Valid
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parameters: %w", err)
	}
	return params, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunSummary(row rowScanner) (RunSummary, error) {
	var (
		sum                         RunSummary
		status, keys                string
		started, finished           int64
		chi2, reduced, rp, rwp, rex sql.NullFloat64
	)
	err := row.Scan(
		&sum.ID, &sum.JobName, &sum.JobHash, &status, &started, &finished,
		&sum.Iterations, &keys, &chi2, &reduced,
		&rp, &rwp, &rex, &sum.Stats.N, &sum.Stats.P, &sum.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, err
	}
	if err != nil {
		return RunSummary{}, fmt.Errorf("scan run: %w", err)
	}

	sum.Status = analysis.Status(status)
	sum.Started = fromUnixNano(started)
	sum.Finished = fromUnixNano(finished)
	if sum.FreeKeys, err = unmarshalStrings(keys); err != nil {
		return RunSummary{}, err
	}
	sum.Stats.ChiSquare = floatOrNaN(chi2)
	sum.Stats.ReducedChiSquare = floatOrNaN(reduced)
	sum.Stats.Rp = floatOrNaN(rp)
	sum.Stats.Rwp = floatOrNaN(rwp)
	sum.Stats.Rexp = floatOrNaN(rex)
	return sum, nil
}
