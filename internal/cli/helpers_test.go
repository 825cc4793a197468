package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const growScenario = `name: grow
root: board
kinds:
  board:
    fields:
      - {name: children, shape: list, kinds: [item]}
  item: {}
steps:
  - serve: {field: children, entries: [{key: a}, {key: b}]}
    expect: {starts: 2, updates: 3, nodes: 3}
  - snapshot: grown
`

const wrongScenario = `name: wrong
root: board
kinds:
  board:
    fields:
      - {name: children, shape: list, kinds: [item]}
  item: {}
steps:
  - serve: {field: children, entries: [{key: a}]}
    expect: {starts: 5}
`

const invalidScenario = `name: invalid
root: board
kinds:
  board: {}
steps:
  - restore: {name: never}
`

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
