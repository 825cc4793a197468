package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statetree/internal/behavior"
	"github.com/roach88/statetree/internal/tree"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, tree.DefaultMaxSteps, cfg.MaxSteps)
	assert.Equal(t, behavior.TrackUntilComplete, cfg.Tracking)
	assert.Equal(t, 5*time.Second, cfg.AwaitTimeout)
}

func TestLoad_AllKeys(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
max_steps = 500

[behaviors]
tracking = "indefinitely"
await_timeout = "250ms"

[metrics]
namespace = "app"

[store]
path = "/tmp/trees.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		LogLevel:         slog.LevelDebug,
		MaxSteps:         500,
		Tracking:         behavior.TrackIndefinitely,
		AwaitTimeout:     250 * time.Millisecond,
		MetricsNamespace: "app",
		StorePath:        "/tmp/trees.db",
	}, cfg)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[behaviors]\nawait_timeout = \"1s\"\n"))
	require.NoError(t, err)

	want := Default()
	want.AwaitTimeout = time.Second
	assert.Equal(t, want, cfg)
}

func TestLoad_UnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "max_step = 3\n[metrics]\nport = 9090\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_step")
	assert.Contains(t, err.Error(), "metrics.port")
	assert.True(t, IsUnknownKeys(err))
}

func TestUnknownKeys_SameReportFromLoadAndParse(t *testing.T) {
	text := "[store]\nfile = \"x.db\"\nmax_step = 3\n"
	_, loadErr := Load(writeConfig(t, text))
	_, parseErr := Parse(text)

	var fromLoad, fromParse *UnknownKeysError
	require.ErrorAs(t, loadErr, &fromLoad)
	require.ErrorAs(t, parseErr, &fromParse)
	assert.Equal(t, []string{"store.file", "store.max_step"}, fromLoad.Keys)
	assert.Equal(t, fromLoad.Keys, fromParse.Keys)
	assert.Equal(t, "parse config: unknown keys: store.file, store.max_step", parseErr.Error())
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"level":    `log_level = "loud"`,
		"steps":    `max_steps = 0`,
		"tracking": "[behaviors]\ntracking = \"forever\"",
		"timeout":  "[behaviors]\nawait_timeout = \"soon\"",
		"syntax":   `max_steps = `,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(text)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
