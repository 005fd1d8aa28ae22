// Package config loads grumpy's configuration from defaults, grumpy.yaml,
// GRUMPY_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"time"
)

// RuleConfig is an inline override for one rule under the rules key.
type RuleConfig struct {
	Enabled  *bool          `koanf:"enabled"`
	Severity string         `koanf:"severity"`
	Options  map[string]any `koanf:"options"`
}

// Config holds all CLI configuration options.
type Config struct {
	GrumpinessLevel string   `koanf:"grumpiness_level"`
	Verbose         bool     `koanf:"verbose"`
	Debug           bool     `koanf:"debug"`
	OutputFormat    string   `koanf:"output"`
	WatchFiles      []string `koanf:"watch_files"`
	IgnorePatterns  []string `koanf:"ignore_patterns"`

	// Thresholds are nil unless set by a config layer, so rule files keep
	// their own values.
	MaxFunctionSize *int `koanf:"max_function_size"`
	MaxComplexity   *int `koanf:"max_complexity"`

	CustomRules    []string              `koanf:"custom_rules"`
	RulesFile      string                `koanf:"rules_file"`
	Rules          map[string]RuleConfig `koanf:"rules"`
	GitIntegration bool                  `koanf:"git_integration"`
	StaleDays      int                   `koanf:"stale_days"`
	External       []string              `koanf:"external"`

	Workers     int           `koanf:"workers"`
	FileTimeout time.Duration `koanf:"file_timeout"`
	MinSeverity string        `koanf:"min_severity"`
	StatePath   string        `koanf:"state_path"`
	NoState     bool          `koanf:"no_state"`

	// ProjectRoot is the directory analyzed paths are relative to.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultGrumpiness  = "mild"
	DefaultOutput      = "auto" // TTY=text, otherwise markdown
	DefaultStateFile   = ".grumpy/state.db"
	DefaultMinSeverity = "info"
	DefaultStaleDays   = 7
	DefaultFileTimeout = 10 * time.Second
)

// Config file names, in lookup order.
var configFileNames = []string{"grumpy.yaml", "grumpy.yml", ".grumpy.yaml", ".grumpy.yml"}

// RuleFiles returns rules_file followed by custom_rules, the order the
// registry merges them in.
func (c *Config) RuleFiles() []string {
	var files []string
	if c.RulesFile != "" {
		files = append(files, c.RulesFile)
	}
	return append(files, c.CustomRules...)
}
