package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/grumpy/pkg/core"
)

// AnalyzerRun records how one external analyzer fared during a pass.
type AnalyzerRun struct {
	Name     string
	Findings int
	// Err is set when the analyzer failed; its findings were discarded.
	Err error
}

// runAnalyzers runs every external analyzer over paths and groups the
// findings by path. Findings for paths outside the pass are dropped. A
// failing analyzer is logged and contributes nothing.
func (e *Engine) runAnalyzers(ctx context.Context, paths []string) (map[string][]core.Finding, []AnalyzerRun) {
	if len(e.analyzers) == 0 || len(paths) == 0 {
		return nil, nil
	}

	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[p] = true
	}

	out := make(map[string][]core.Finding)
	runs := make([]AnalyzerRun, 0, len(e.analyzers))
	for _, a := range e.analyzers {
		findings, err := runAnalyzer(ctx, a, e.root, paths)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			e.logger.Warn("external analyzer failed", "analyzer", a.Name(), "error", err)
			runs = append(runs, AnalyzerRun{Name: a.Name(), Err: err})
			continue
		}

		kept := 0
		for _, f := range findings {
			p := strings.TrimPrefix(filepath.ToSlash(f.Path), "./")
			if !wanted[p] {
				continue
			}
			f.Path = p
			f.Kind = core.KindExternal
			if f.Source == "" {
				f.Source = a.Name()
			}
			if f.RuleID == "" {
				f.RuleID = a.Name()
			}
			out[p] = append(out[p], f)
			kept++
		}
		e.logger.Debug("external analyzer finished", "analyzer", a.Name(), "findings", kept)
		runs = append(runs, AnalyzerRun{Name: a.Name(), Findings: kept})
	}
	return out, runs
}

// runAnalyzer calls the analyzer and converts a panic into an error.
func runAnalyzer(ctx context.Context, a Analyzer, root string, paths []string) (findings []core.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Analyze(ctx, root, paths)
}
