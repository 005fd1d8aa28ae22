package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/grumpy/internal/changes"
	"github.com/leapstack-labs/grumpy/internal/cli/output"
	"github.com/leapstack-labs/grumpy/pkg/core"
)

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Key string
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Msg)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, ok := core.ParseTone(c.GrumpinessLevel); !ok {
		return &ValidationError{Key: "grumpiness_level", Msg: fmt.Sprintf("must be one of %s, but got %q", toneNames(), c.GrumpinessLevel)}
	}
	if c.MaxFunctionSize != nil && *c.MaxFunctionSize <= 0 {
		return &ValidationError{Key: "max_function_size", Msg: fmt.Sprintf("must be greater than 0, but got %d", *c.MaxFunctionSize)}
	}
	if c.MaxComplexity != nil && *c.MaxComplexity <= 0 {
		return &ValidationError{Key: "max_complexity", Msg: fmt.Sprintf("must be greater than 0, but got %d", *c.MaxComplexity)}
	}
	if len(c.WatchFiles) == 0 {
		return &ValidationError{Key: "watch_files", Msg: "must not be empty"}
	}
	if _, err := changes.NewFilter(c.WatchFiles, c.IgnorePatterns); err != nil {
		return &ValidationError{Key: "watch_files", Msg: err.Error()}
	}
	if _, ok := core.ParseSeverity(c.MinSeverity); !ok {
		return &ValidationError{Key: "min_severity", Msg: fmt.Sprintf("must be error, warning or info, but got %q", c.MinSeverity)}
	}
	if c.Workers < 0 {
		return &ValidationError{Key: "workers", Msg: fmt.Sprintf("must not be negative, but got %d", c.Workers)}
	}
	if c.FileTimeout < 0 {
		return &ValidationError{Key: "file_timeout", Msg: fmt.Sprintf("must not be negative, but got %s", c.FileTimeout)}
	}
	if c.StaleDays < 0 {
		return &ValidationError{Key: "stale_days", Msg: fmt.Sprintf("must not be negative, but got %d", c.StaleDays)}
	}
	if !slices.Contains(output.Modes(), c.OutputFormat) {
		return &ValidationError{Key: "output", Msg: fmt.Sprintf("must be one of %s, but got %q", strings.Join(output.Modes(), ", "), c.OutputFormat)}
	}
	for id, rc := range c.Rules {
		if rc.Severity == "" || strings.EqualFold(rc.Severity, core.SeverityOff) {
			continue
		}
		if _, ok := core.ParseSeverity(rc.Severity); !ok {
			return &ValidationError{Key: "rules." + id + ".severity", Msg: fmt.Sprintf("unknown severity %q", rc.Severity)}
		}
	}
	return nil
}

// Tone returns the configured tone. Call Validate first.
func (c *Config) Tone() core.Tone {
	tone, _ := core.ParseTone(c.GrumpinessLevel)
	return tone
}

// Severity returns the configured minimum severity. Call Validate first.
func (c *Config) Severity() core.Severity {
	sev, ok := core.ParseSeverity(c.MinSeverity)
	if !ok {
		return core.SeverityInfo
	}
	return sev
}

func toneNames() string {
	names := make([]string, 0, len(core.Tones()))
	for _, t := range core.Tones() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
