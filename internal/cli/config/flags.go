package config

import (
	"github.com/spf13/pflag"
)

// RegisterFlags adds the global flags. Every configuration key has a
// kebab-case flag; --state maps to state_path.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: ./grumpy.yaml)")
	fs.String("root", "", "project root to analyze (default: directory of grumpy.yaml or current directory)")

	fs.StringP("grumpiness-level", "g", "", "Tone of the messages: mild, sarcastic or rude")
	fs.BoolP("verbose", "v", false, "Verbose output, including recoverable errors")
	fs.Bool("debug", false, "Debug logging")
	fs.StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	fs.StringSlice("watch-files", nil, "Glob patterns of files to analyze")
	fs.StringSlice("ignore-patterns", nil, "Glob patterns of files to skip")
	fs.Int("max-function-size", 0, "Maximum number of lines in a function")
	fs.Int("max-complexity", 0, "Maximum cyclomatic complexity of a function")
	fs.StringSlice("custom-rules", nil, "Custom rule files, merged in order")
	fs.String("rules-file", "", "Rule file merged before the custom rule files")
	fs.Bool("git-integration", false, "Enable git annotations (stale files, authors)")
	fs.Int("stale-days", 0, "Days without commits after which a file is stale")
	fs.StringSlice("external", nil, "External analyzers to run (vet, gofmt)")

	fs.Int("workers", 0, "Concurrent file evaluations (default: number of CPUs)")
	fs.Duration("file-timeout", 0, "Analysis time limit per file")
	fs.String("min-severity", "", "Minimum severity to report: error, warning, info")
	fs.String("state", "", "Path to state database")
	fs.Bool("no-state", false, "Do not read or write the state database")
}
