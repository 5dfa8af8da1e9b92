package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/queryir"
)

func TestCompileSelectNoFilter(t *testing.T) {
	c := NewSQLCompiler()
	sql, params, err := c.Compile(queryir.Select{From: "runs", Columns: []string{"id", "status"}})
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, status FROM runs ORDER BY id COLLATE BINARY ASC", sql)
	assert.Empty(t, params)
}

func TestCompileSelectFull(t *testing.T) {
	c := NewSQLCompiler()
	q := &queryir.Select{
		From:    "runs",
		Columns: []string{"id", "job_name"},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "status", Value: ir.IRString("converged")},
			queryir.Compare{Field: "reduced_chi_square", Op: queryir.OpLessEqual, Value: ir.IRFloat(1.5)},
			queryir.Compare{Field: "iterations", Op: queryir.OpGreater, Value: ir.IRInt(3)},
		}},
		OrderBy: []queryir.Order{{Field: "started_at", Desc: true}},
		Limit:   5,
	}

	sql, params, err := c.Compile(q)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, job_name FROM runs WHERE status = ? AND reduced_chi_square <= ? AND iterations > ? "+
			"ORDER BY started_at DESC, id COLLATE BINARY ASC LIMIT ?",
		sql)
	assert.Equal(t, []any{"converged", 1.5, int64(3), int64(5)}, params)
}

func TestCompileNestedAndIsParenthesized(t *testing.T) {
	c := NewSQLCompiler()
	q := queryir.Select{
		From:    "runs",
		Columns: []string{"id"},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "job_name", Value: ir.IRString("lbco")},
			queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "status", Value: ir.IRString("failed")},
				queryir.Equals{Field: "n_free", Value: ir.IRInt(2)},
			}},
		}},
	}

	sql, params, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE job_name = ? AND (status = ? AND n_free = ?)")
	assert.Equal(t, []any{"lbco", "failed", int64(2)}, params)
}

func TestCompileEmptyAndIsTrue(t *testing.T) {
	c := NewSQLCompiler()
	sql, _, err := c.Compile(queryir.Select{From: "runs", Columns: []string{"id"}, Filter: queryir.And{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE 1 = 1")
}

func TestCompileKeyOrderNotDuplicated(t *testing.T) {
	c := &SQLCompiler{Key: "run_id"}
	sql, _, err := c.Compile(queryir.Select{
		From:    "runs",
		Columns: []string{"run_id"},
		OrderBy: []queryir.Order{{Field: "run_id", Desc: true}, {Field: "job_name"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT run_id FROM runs ORDER BY job_name ASC, run_id COLLATE BINARY ASC", sql)
}

func TestCompileErrors(t *testing.T) {
	c := NewSQLCompiler()

	_, _, err := c.Compile(nil)
	assert.Error(t, err)

	_, _, err = c.Compile(queryir.Select{From: "runs"})
	assert.Error(t, err, "columns are required")

	_, _, err = c.Compile(queryir.Select{
		From:    "runs",
		Columns: []string{"id"},
		Filter:  queryir.Equals{Field: "values", Value: ir.IRArray{}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported IRValue")
}
