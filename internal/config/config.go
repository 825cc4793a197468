// Package config loads process configuration for the statetree CLI from a
// TOML file. Keys left out of the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/roach88/statetree/internal/behavior"
	"github.com/roach88/statetree/internal/tree"
)

// DefaultFile is the config file looked up when none is named.
const DefaultFile = "statetree.toml"

// Config is the resolved runtime configuration.
type Config struct {
	LogLevel         slog.Level
	MaxSteps         int
	Tracking         behavior.Tracking
	AwaitTimeout     time.Duration
	MetricsNamespace string
	StorePath        string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:         slog.LevelInfo,
		MaxSteps:         tree.DefaultMaxSteps,
		Tracking:         behavior.TrackUntilComplete,
		AwaitTimeout:     5 * time.Second,
		MetricsNamespace: "statetree",
		StorePath:        "statetree.db",
	}
}

type fileConfig struct {
	LogLevel  string `toml:"log_level"`
	MaxSteps  int    `toml:"max_steps"`
	Behaviors struct {
		Tracking     string `toml:"tracking"`
		AwaitTimeout string `toml:"await_timeout"`
	} `toml:"behaviors"`
	Metrics struct {
		Namespace string `toml:"namespace"`
	} `toml:"metrics"`
	Store struct {
		Path string `toml:"path"`
	} `toml:"store"`
}

// UnknownKeysError lists keys in a config file that map to no setting.
type UnknownKeysError struct {
	Keys []string
}

func (e *UnknownKeysError) Error() string {
	return "unknown keys: " + strings.Join(e.Keys, ", ")
}

// IsUnknownKeys reports whether err carries an *UnknownKeysError.
func IsUnknownKeys(err error) bool {
	var target *UnknownKeysError
	return errors.As(err, &target)
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return resolve(meta, raw)
}

// Parse reads TOML text over the defaults. Unknown keys are an error.
func Parse(text string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return resolve(meta, raw)
}

func checkUndecoded(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	slices.Sort(keys)
	return &UnknownKeysError{Keys: keys}
}

func resolve(meta toml.MetaData, raw fileConfig) (Config, error) {
	cfg := Default()

	if meta.IsDefined("log_level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(raw.LogLevel))); err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
	}

	if meta.IsDefined("max_steps") {
		if raw.MaxSteps <= 0 {
			return Config{}, fmt.Errorf("max_steps must be positive, got %d", raw.MaxSteps)
		}
		cfg.MaxSteps = raw.MaxSteps
	}

	if meta.IsDefined("behaviors", "tracking") {
		t, err := behavior.ParseTracking(raw.Behaviors.Tracking)
		if err != nil {
			return Config{}, fmt.Errorf("parse behaviors.tracking: %w", err)
		}
		cfg.Tracking = t
	}

	if meta.IsDefined("behaviors", "await_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Behaviors.AwaitTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse behaviors.await_timeout: %w", err)
		}
		cfg.AwaitTimeout = d
	}

	if meta.IsDefined("metrics", "namespace") {
		cfg.MetricsNamespace = strings.TrimSpace(raw.Metrics.Namespace)
	}

	if meta.IsDefined("store", "path") {
		if p := strings.TrimSpace(raw.Store.Path); p != "" {
			cfg.StorePath = p
		}
	}

	return cfg, nil
}
