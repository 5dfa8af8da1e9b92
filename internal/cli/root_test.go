package cli

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "easydiffraction", cmd.Use)
	assert.Contains(t, cmd.Long, "refine")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "simulate", "refine", "history", "show", "replay", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestRefineCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	refineCmd, _, err := cmd.Find([]string{"refine"})
	require.NoError(t, err)

	for _, name := range []string{"job", "db", "no-save", "metrics"} {
		assert.NotNil(t, refineCmd.Flags().Lookup(name), "flag --%s", name)
	}
	// --db falls back to the configured path
	assert.Equal(t, "", refineCmd.Flags().Lookup("db").DefValue)
}

func TestSimulateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	simCmd, _, err := cmd.Find([]string{"simulate"})
	require.NoError(t, err)

	for _, name := range []string{"job", "output", "start", "stop", "step"} {
		assert.NotNil(t, simCmd.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestHistoryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)

	for _, name := range []string{"db", "job", "hash", "status", "max-chi2", "since", "limit"} {
		assert.NotNil(t, historyCmd.Flags().Lookup(name), "flag --%s", name)
	}
	assert.Equal(t, "20", historyCmd.Flags().Lookup("limit").DefValue)
}

func TestShowCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	showCmd, _, err := cmd.Find([]string{"show"})
	require.NoError(t, err)

	assert.NotNil(t, showCmd.Flags().Lookup("db"))
	iterFlag := showCmd.Flags().Lookup("iterations")
	require.NotNil(t, iterFlag)
	assert.Equal(t, "false", iterFlag.DefValue)
}

func TestReplayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	replayCmd, _, err := cmd.Find([]string{"replay"})
	require.NoError(t, err)

	dbFlag := replayCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "compile", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootLoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "max_iterations: 7\ndb_path: "+filepath.Join(dir, "runs.db")+"\n")

	cmd := NewRootCommand()
	out, err := run(t, cmd, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found")

	_, err = os.Stat(filepath.Join(dir, "runs.db"))
	assert.NoError(t, err, "history should open the configured database")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "max_iterations: 0\n")

	cmd := NewRootCommand()
	_, err := run(t, cmd, "--config", cfgPath, "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "max_iterations")
}

func TestRootOptionsFallbacks(t *testing.T) {
	opts := &RootOptions{}
	assert.Equal(t, config.Defaults(), opts.runtimeConfig())
	require.NotNil(t, opts.logger())

	buf := &bytes.Buffer{}
	logger := newLogger(buf, false)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	newLogger(buf, true).Debug("detail")
	assert.Contains(t, buf.String(), "detail")
	assert.True(t, newLogger(buf, true).Enabled(t.Context(), slog.LevelDebug))
}
