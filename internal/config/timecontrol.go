package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// TimeControl is one named clock preset.
type TimeControl struct {
	InitialMs   int `yaml:"initial_ms"`
	IncrementMs int `yaml:"increment_ms"`
}

var defaultTimeControls = map[string]TimeControl{
	"bullet":    {InitialMs: 60_000, IncrementMs: 0},
	"blitz":     {InitialMs: 180_000, IncrementMs: 2_000},
	"rapid":     {InitialMs: 600_000, IncrementMs: 0},
	"classical": {InitialMs: 1_800_000, IncrementMs: 10_000},
}

// LoadTimeControls merges presets from an optional yaml file over the
// built-in set. File entries with the same name win.
func LoadTimeControls(path string) (map[string]TimeControl, error) {
	merged := make(map[string]TimeControl, len(defaultTimeControls))
	for name, tc := range defaultTimeControls {
		merged[name] = tc
	}
	if path == "" {
		return merged, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read time controls: %w", err)
	}
	var fromFile map[string]TimeControl
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return nil, fmt.Errorf("parse time controls: %w", err)
	}
	for name, tc := range fromFile {
		if tc.InitialMs <= 0 {
			return nil, fmt.Errorf("time control %q: initial_ms must be positive", name)
		}
		if tc.IncrementMs < 0 {
			return nil, fmt.Errorf("time control %q: increment_ms must not be negative", name)
		}
		merged[name] = tc
	}
	return merged, nil
}

// Resolve picks the preset named by the config, falling back to the explicit
// millisecond settings for unknown names. INITIAL_TIME_MS / INCREMENT_MS set
// in the environment always win over the preset's values.
func (c *AppConfig) Resolve(controls map[string]TimeControl) TimeControl {
	tc, ok := controls[c.TimeControl]
	if !ok {
		tc = TimeControl{InitialMs: c.InitialTimeMs, IncrementMs: c.IncrementMs}
	}
	if c.initialFromEnv {
		tc.InitialMs = c.InitialTimeMs
	}
	if c.incrementFromEnv {
		tc.IncrementMs = c.IncrementMs
	}
	return tc
}
