package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "GRUMPY_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// configIn returns the config file in dir, if any.
func configIn(dir string) string {
	for _, name := range configFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a grumpy config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configIn(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Explicit --root flag
//  2. Directory of an explicit --config file
//  3. Search upward from CWD for grumpy.yaml
//  4. Current working directory
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Changed("root") {
		if root, _ := flags.GetString("root"); root != "" {
			return absOrClean(root)
		}
	}

	if cfgFile != "" {
		return filepath.Dir(absOrClean(cfgFile))
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

func absOrClean(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// listKeys are the keys whose environment values are comma-separated lists.
var listKeys = map[string]bool{
	"watch_files":     true,
	"ignore_patterns": true,
	"custom_rules":    true,
	"external":        true,
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// defaults is the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"grumpiness_level": DefaultGrumpiness,
		"verbose":          false,
		"debug":            false,
		"output":           DefaultOutput,
		"watch_files":      []string{"*.go"},
		"ignore_patterns":  []string{"vendor/", ".git/", "testdata/"},
		"custom_rules":     []string{},
		"rules_file":       "",
		"git_integration":  false,
		"stale_days":       DefaultStaleDays,
		"external":         []string{},
		"workers":          0,
		"file_timeout":     DefaultFileTimeout.String(),
		"min_severity":     DefaultMinSeverity,
		"state_path":       DefaultStateFile,
		"no_state":         false,
	}
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	projectRoot := inferProjectRoot(cfgFile, flags)

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		cfgFile = configIn(projectRoot)
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (GRUMPY_ prefix)
	// Transform: GRUMPY_MAX_COMPLEXITY -> max_complexity
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	var flagPaths map[string]bool
	if flags != nil {
		flagPaths = make(map[string]bool)
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "config", "root":
				return "", nil
			case "state":
				key = "state_path"
			}
			if key == "state_path" || key == "rules_file" || key == "custom_rules" {
				flagPaths[key] = true
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve paths. Flag values are relative to the working directory,
	// everything else to the project root.
	cfg.ProjectRoot = projectRoot
	resolve := func(key, path string) string {
		path = expandEnvVars(path)
		if flagPaths[key] {
			if path == "" {
				return path
			}
			return absOrClean(path)
		}
		return resolvePathRelativeTo(path, projectRoot)
	}
	cfg.StatePath = resolve("state_path", cfg.StatePath)
	cfg.RulesFile = resolve("rules_file", cfg.RulesFile)
	for i, p := range cfg.CustomRules {
		cfg.CustomRules[i] = resolve("custom_rules", p)
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the CLI logger: errors only by default, warnings when
// verbose and everything with debug.
func NewLogger(w io.Writer, verbose, debug bool) *slog.Logger {
	level := slog.LevelError
	switch {
	case debug:
		level = slog.LevelDebug
	case verbose:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}
