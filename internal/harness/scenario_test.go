package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
root: board
kinds:
  board:
    fields:
      - name: children
        shape: list
        kinds: [item]
  item: {}
steps:
  - serve:
      field: children
      entries: [{key: a}]
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", sc.Name)
	assert.Equal(t, "board", sc.Root)
	require.Len(t, sc.Steps, 1)
	assert.Equal(t, OpServe, sc.Steps[0].Op())
	assert.Equal(t, []EntrySpec{{Key: "a"}}, sc.Steps[0].Serve.Entries)
}

func TestLoadScenario_TestdataParses(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			_, err := LoadScenario(f)
			require.NoError(t, err)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownYAMLField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "\nflavour: typo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown shape",
			yaml: `
name: bad
root: board
kinds:
  board:
    fields:
      - {name: children, shape: set, kinds: [board]}
steps: []
`,
		},
		{
			name: "key with separator",
			yaml: `
name: bad
root: board
kinds:
  board:
    fields:
      - {name: children, shape: list, kinds: [board]}
steps:
  - serve: {field: children, entries: [{key: a.b}]}
`,
		},
		{
			name: "unknown error kind",
			yaml: `
name: bad
root: board
kinds:
  board: {}
steps:
  - set: {key: k, value: v}
    expect_error: exploded
`,
		},
		{
			name: "negative count",
			yaml: `
name: bad
root: board
kinds:
  board: {}
expect_start: {starts: -1}
steps: []
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema([]byte(tt.yaml))
			require.Error(t, err)
			var schemaErr *SchemaError
			assert.ErrorAs(t, err, &schemaErr)
		})
	}
}

func TestValidate_Codes(t *testing.T) {
	sc := &Scenario{
		Name: "bad",
		Root: "missing",
		Kinds: map[string]KindSpec{
			"board": {Fields: []FieldSpec{
				{Name: "pane", Shape: "union2", Kinds: []string{"item"}, Default: []EntrySpec{{Tag: 0}}},
				{Name: "pane", Shape: "single", Kinds: []string{"item"}},
				{Name: "slot", Shape: "maybe_single", Kinds: []string{"ghost"}, Default: []EntrySpec{{}, {}}},
				{Name: "rows", Shape: "list", Kinds: []string{"item"}, Default: []EntrySpec{{Key: "a"}, {Key: "a"}}},
			}},
			"item": {},
		},
		Steps: []Step{
			{},
			{Snapshot: "s", Set: &SetStep{Key: "k"}},
			{Restore: &RestoreStep{Name: "never"}},
		},
	}

	codes := map[string]int{}
	for _, e := range Validate(sc) {
		codes[e.Code]++
	}

	assert.Equal(t, 2, codes[ErrUnknownKind], "root kind and ghost prototype")
	assert.Equal(t, 1, codes[ErrInvalidShape], "union2 with one prototype")
	assert.Equal(t, 1, codes[ErrDuplicateField])
	assert.Equal(t, 3, codes[ErrInvalidDefault], "single without default, two maybe defaults, repeated list key")
	assert.Equal(t, 2, codes[ErrStepOperation])
	assert.Equal(t, 1, codes[ErrUnknownSnapshot])
}

func TestValidate_RestoreAfterSnapshot(t *testing.T) {
	sc := &Scenario{
		Name:  "ok",
		Root:  "board",
		Kinds: map[string]KindSpec{"board": {}},
		Steps: []Step{
			{Snapshot: "s1"},
			{Restore: &RestoreStep{Name: "s1"}},
		},
	}
	assert.Empty(t, Validate(sc))
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "root", Message: "root kind is required", Code: ErrMissingField}
	assert.Equal(t, "[E201] root: root kind is required", err.Error())
}

func TestParseScenario_SemanticErrorsJoined(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: bad
root: board
kinds:
  board:
    fields:
      - {name: children, shape: single, kinds: [item]}
  item: {}
steps:
  - restore: {name: s1}
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrInvalidDefault)
	assert.Contains(t, err.Error(), ErrUnknownSnapshot)
}
