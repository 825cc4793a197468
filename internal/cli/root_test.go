package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "statetree", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"run"}, {"test"}, {"validate"},
		{"snapshot", "save"}, {"snapshot", "list"}, {"snapshot", "show"}, {"snapshot", "delete"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
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
	assert.Equal(t, "statetree.toml", configFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "grow.yaml", growScenario)

	_, err := executeCommand(t, "run", path, "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExplicitConfigMissing(t *testing.T) {
	path := writeFile(t, t.TempDir(), "grow.yaml", growScenario)

	_, err := executeCommand(t, "run", path, "--config", filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigMaxStepsApplies(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grow.yaml", growScenario)
	cfg := writeFile(t, dir, "statetree.toml", "max_steps = 2\n")

	out, err := executeCommand(t, "run", path, "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "error=steps_exceeded")
}

func TestConfigUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grow.yaml", growScenario)
	cfg := writeFile(t, dir, "statetree.toml", "max_stepz = 2\n")

	_, err := executeCommand(t, "run", path, "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Contains(t, exitErr.Err.Error(), "max_stepz")
}
