package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/compiler"
)

func TestValidateValidJobs(t *testing.T) {
	jobPath := writeRefineFixture(t)

	out, err := run(t, NewValidateCommand(&RootOptions{Format: "text"}), jobPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All 1 job(s) valid")
}

func TestValidateValidJobsJSON(t *testing.T) {
	jobPath := writeRefineFixture(t)

	out, err := run(t, NewValidateCommand(&RootOptions{Format: "json"}), jobPath)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Jobs)
}

func TestValidateInvalidJob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "jobs.cue", invalidJob)

	out, err := run(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownPhase)
	assert.Contains(t, out, `unknown phase "nowhere"`)
}

func TestValidateInvalidJobJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "jobs.cue", invalidJob)

	out, err := run(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Contains(t, resp.Data.Errors[0].Field, "job.broken.")
	require.NotNil(t, resp.Error)
	assert.Equal(t, resp.Data.Errors[0].Code, resp.Error.Code)
}

func TestValidateReportsLoadErrorsWithStructuralOnes(t *testing.T) {
	dir := t.TempDir()
	// cubic.xye is missing: a load error for one job, a structural
	// error for the other.
	writeFile(t, dir, "jobs.cue", cubicJob+invalidJob)

	errs, jobs, err := ValidateJobs(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, jobs)

	var fields []string
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "load")
	assert.Contains(t, errs[0].Message, "job.cubic")
}

func TestValidateNonExistentPath(t *testing.T) {
	out, err := run(t, NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/jobs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E005")
}
