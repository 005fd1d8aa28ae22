// Package engine evaluates a RuleSet over source files.
// It handles worker scheduling, per-file fault isolation, content-hash
// caching and incremental re-evaluation of change sets.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/source"
)

// DefaultFileTimeout bounds the evaluation of a single file.
const DefaultFileTimeout = 10 * time.Second

// Analyzer is an external tool whose diagnostics are merged into the
// findings of a pass. A failing analyzer contributes zero findings.
type Analyzer interface {
	// Name is used as the Source of the findings it returns.
	Name() string
	// Analyze inspects the given root-relative paths.
	Analyze(ctx context.Context, root string, paths []string) ([]core.Finding, error)
}

// Engine evaluates rule sets. It holds no per-pass state and is safe for
// concurrent use.
type Engine struct {
	root        string
	workers     int
	fileTimeout time.Duration
	minSeverity core.Severity
	parser      source.Parser
	analyzers   []Analyzer
	readFile    func(string) ([]byte, error)

	// Structured logger
	logger *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// Root is the directory that evaluated paths are relative to (default ".")
	Root string
	// Workers is the size of the worker pool (default runtime.NumCPU())
	Workers int
	// FileTimeout bounds the evaluation of one file (default DefaultFileTimeout)
	FileTimeout time.Duration
	// MinSeverity drops findings below the threshold (nil keeps every finding)
	MinSeverity *core.Severity
	// Parser builds source units (default source.Default)
	Parser source.Parser
	// Analyzers are external tools run over the files of each pass
	Analyzers []Analyzer
	// ReadFile reads a file by its joined path (default os.ReadFile)
	ReadFile func(string) ([]byte, error)
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates a new engine.
func New(cfg Config) *Engine {
	// Initialize logger (use discard handler if nil)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	root := cfg.Root
	if root == "" {
		root = "."
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	timeout := cfg.FileTimeout
	if timeout <= 0 {
		timeout = DefaultFileTimeout
	}
	parser := cfg.Parser
	if parser == nil {
		parser = source.Default
	}
	minSeverity := core.SeverityInfo
	if cfg.MinSeverity != nil {
		minSeverity = *cfg.MinSeverity
	}
	readFile := cfg.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}

	logger.Debug("initializing engine", "root", root, "workers", workers, "file_timeout", timeout)

	return &Engine{
		root:        root,
		workers:     workers,
		fileTimeout: timeout,
		minSeverity: minSeverity,
		parser:      parser,
		analyzers:   cfg.Analyzers,
		readFile:    readFile,
		logger:      logger,
	}
}

// Root returns the directory evaluated paths are relative to.
func (e *Engine) Root() string {
	return e.root
}

func (e *Engine) join(path string) string {
	return filepath.Join(e.root, filepath.FromSlash(path))
}
