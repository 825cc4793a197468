package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statetree/internal/store"
)

func TestRunCommand_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "grow.yaml", growScenario)

	out, err := executeCommand(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ grow")
	assert.Contains(t, out, "starts=2 stops=0 updates=3 nodes=3")
}

func TestRunCommand_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "grow.yaml", growScenario)

	out, err := executeCommand(t, "run", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Result struct {
				Scenario string `json:"scenario"`
				Pass     bool   `json:"pass"`
				Steps    []struct {
					Op    string `json:"op"`
					Nodes int    `json:"nodes"`
				} `json:"steps"`
			} `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "grow", resp.Data.Result.Scenario)
	assert.True(t, resp.Data.Result.Pass)
	require.Len(t, resp.Data.Result.Steps, 2)
	assert.Equal(t, "serve", resp.Data.Result.Steps[0].Op)
	assert.Equal(t, 3, resp.Data.Result.Steps[0].Nodes)
}

func TestRunCommand_FailedExpectation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "wrong.yaml", wrongScenario)

	out, err := executeCommand(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "expected 5 node starts, got 1")
}

func TestRunCommand_FailedExpectationJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "wrong.yaml", wrongScenario)

	out, err := executeCommand(t, "run", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeFailed, resp.Error.Code)
	assert.NotNil(t, resp.Data)
}

func TestRunCommand_Metrics(t *testing.T) {
	path := writeFile(t, t.TempDir(), "grow.yaml", growScenario)

	out, err := executeCommand(t, "run", path, "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "statetree_tree_node_events_total")
}

func TestRunCommand_MissingScenario(t *testing.T) {
	_, err := executeCommand(t, "run", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_StoresSnapshotSteps(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grow.yaml", growScenario)
	db := filepath.Join(dir, "snapshots.db")

	_, err := executeCommand(t, "run", path, "--db", db)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	infos, err := st.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "grow/grown", infos[0].Name)
	assert.Equal(t, 3, infos[0].NodeCount)
}
