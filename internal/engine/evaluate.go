package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/grumpy/internal/changes"
	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/lint"
	"github.com/leapstack-labs/grumpy/pkg/source"
)

// Rule IDs of findings the engine reports about files it could not analyze.
const (
	RuleUnparseable = "unparseable"
	RuleTimeout     = "timeout"
)

// Stats summarizes one pass.
type Stats struct {
	// Files is the number of paths handed to the pass
	Files int
	// Evaluated is the number of files parsed and run through the rules
	Evaluated int
	// Cached is the number of files whose findings came from the cache
	Cached int
	// Deleted is the number of paths removed from the cache
	Deleted int
	// Degraded is the number of files that produced unparseable, timeout or
	// rule_error findings
	Degraded int
	// Findings is the number of findings reported
	Findings int
	Duration time.Duration
}

// Result is the outcome of a pass.
type Result struct {
	// Findings are filtered by the minimum severity and sorted with core.Less.
	Findings []core.Finding
	// Cache is the cache to pass to the next evaluation.
	Cache *Cache
	Stats Stats
	// Analyzers lists the external analyzers run during the pass. It is
	// empty when every file came from the cache.
	Analyzers []AnalyzerRun
	// Partial is set by EvaluateChanges when prev did not cover the
	// working set. Findings then describe the evaluated paths only.
	Partial bool

	// uncached is set when findings of some path were left out of Cache.
	uncached bool
}

type fileResult struct {
	path     string
	hash     string
	findings []core.Finding
	cached   bool
	fresh    bool
	missing  bool
	noCache  bool
	degraded bool
}

// Evaluate runs every enabled rule of rs over paths. Files whose content
// hash matches an entry of prev are not parsed again; their cached findings
// are re-emitted. prev is ignored entirely when it was built for another
// rule set. The returned cache holds exactly the given paths.
//
// Evaluate returns an error only when ctx is cancelled. Failures confined
// to one file or one rule are reported as findings.
func (e *Engine) Evaluate(ctx context.Context, paths []string, rs *lint.RuleSet, prev *Cache) (*Result, error) {
	return e.run(ctx, paths, nil, rs, prev, false)
}

// EvaluateAll discovers every file filter accepts and evaluates them. The
// returned cache is complete, and so can back EvaluateChanges, unless some
// file timed out or could not be read.
func (e *Engine) EvaluateAll(ctx context.Context, filter *changes.Filter, rs *lint.RuleSet, prev *Cache) (*Result, error) {
	targets, err := e.Discover(filter)
	if err != nil {
		return nil, err
	}
	result, err := e.run(ctx, targets, nil, rs, prev, false)
	if err != nil {
		return nil, err
	}
	// timed out or unreadable files are missing from the cache
	result.Cache.Complete = !result.uncached
	return result, nil
}

// EvaluateChanges re-evaluates the dirty paths of cs and drops its deleted
// paths from the cache. Findings of untouched cached files are re-emitted,
// so the result describes the whole working set when prev covers it (see
// Cache.Covers). Otherwise the result is marked Partial; callers wanting
// the whole working set should use EvaluateAll instead.
func (e *Engine) EvaluateChanges(ctx context.Context, cs changes.ChangeSet, rs *lint.RuleSet, prev *Cache) (*Result, error) {
	return e.run(ctx, cs.Dirty, cs.Deleted, rs, prev, true)
}

func (e *Engine) run(ctx context.Context, dirty, deleted []string, rs *lint.RuleSet, prev *Cache, incremental bool) (*Result, error) {
	start := time.Now()
	fingerprint := rs.Fingerprint()
	partial := incremental && !prev.Covers(fingerprint)
	if partial {
		e.logger.Warn("cache does not cover the working set, reporting changed files only")
	}

	if prev != nil && prev.Fingerprint != fingerprint && prev.Len() > 0 {
		e.logger.Info("rule set changed, invalidating cache", "entries", prev.Len())
	}
	prev = prev.validFor(fingerprint)

	targets := uniquePaths(dirty)
	e.logger.Debug("starting evaluation", "files", len(targets), "deleted", len(deleted), "incremental", incremental)

	results := make([]fileResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, path := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.evaluateFile(gctx, path, rs, prev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fresh []string
	for _, r := range results {
		if r.fresh {
			fresh = append(fresh, r.path)
		}
	}
	external, runs := e.runAnalyzers(ctx, fresh)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Only the coordinator touches the next cache, after all workers are done.
	var next *Cache
	if incremental {
		next = prev.clone()
	} else {
		next = NewCache(fingerprint)
	}

	stats := Stats{Files: len(targets)}
	for _, p := range uniquePaths(deleted) {
		if _, ok := next.Entries[p]; ok {
			delete(next.Entries, p)
			stats.Deleted++
		}
	}

	var uncached []core.Finding
	for _, r := range results {
		findings := r.findings
		if ext := external[r.path]; len(ext) > 0 {
			findings = append(append([]core.Finding(nil), findings...), ext...)
		}
		if r.degraded {
			stats.Degraded++
		}
		switch {
		case r.missing:
			if _, ok := next.Entries[r.path]; ok {
				stats.Deleted++
			}
			delete(next.Entries, r.path)
		case r.noCache:
			delete(next.Entries, r.path)
			uncached = append(uncached, findings...)
		default:
			next.Entries[r.path] = CacheEntry{Hash: r.hash, Findings: findings}
		}
		if r.cached {
			stats.Cached++
		}
		if r.fresh {
			stats.Evaluated++
		}
	}

	if incremental {
		next.Complete = !partial && len(uncached) == 0
	}

	var all []core.Finding
	for _, p := range next.Paths() {
		all = append(all, next.Entries[p].Findings...)
	}
	all = append(all, uncached...)
	all = core.FilterBySeverity(all, e.minSeverity)
	core.SortFindings(all)

	stats.Findings = len(all)
	stats.Duration = time.Since(start)

	e.logger.Info("evaluation completed",
		"files", stats.Files,
		"evaluated", stats.Evaluated,
		"cached", stats.Cached,
		"deleted", stats.Deleted,
		"findings", stats.Findings,
		"duration", stats.Duration)

	return &Result{
		Findings:  all,
		Cache:     next,
		Stats:     stats,
		Analyzers: runs,
		Partial:   partial,
		uncached:  len(uncached) > 0,
	}, nil
}

func (e *Engine) evaluateFile(ctx context.Context, path string, rs *lint.RuleSet, prev *Cache) fileResult {
	content, err := e.readFile(e.join(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Debug("file no longer exists", "path", path)
			return fileResult{path: path, missing: true}
		}
		e.logger.Warn("failed to read file", "path", path, "error", err)
		return fileResult{
			path:     path,
			noCache:  true,
			degraded: true,
			findings: []core.Finding{degraded(path, core.KindUnparseable, RuleUnparseable, core.Span{}, "cannot read file: %v", err)},
		}
	}

	hash := source.Hash(content)
	if cached, ok := prev.Lookup(path, hash); ok {
		e.logger.Debug("skipping unchanged file", "path", path)
		return fileResult{path: path, hash: hash, findings: cached, cached: true}
	}

	fctx, cancel := context.WithTimeout(ctx, e.fileTimeout)
	defer cancel()

	type analysis struct {
		findings []core.Finding
		degraded bool
		err      error
	}
	done := make(chan analysis, 1)
	go func() {
		findings, isDegraded, err := e.analyze(fctx, path, content, rs)
		done <- analysis{findings: findings, degraded: isDegraded, err: err}
	}()

	var res analysis
	select {
	case res = <-done:
	case <-fctx.Done():
		res.err = fctx.Err()
	}

	if res.err == nil {
		return fileResult{path: path, hash: hash, findings: res.findings, fresh: true, degraded: res.degraded}
	}
	if ctx.Err() != nil {
		// the whole pass was cancelled; the result is discarded
		return fileResult{path: path, noCache: true}
	}

	e.logger.Warn("file evaluation timed out", "path", path, "timeout", e.fileTimeout)
	return fileResult{
		path:     path,
		hash:     hash,
		noCache:  true,
		degraded: true,
		findings: []core.Finding{degraded(path, core.KindTimeout, RuleTimeout, core.Span{}, "evaluation exceeded %s", e.fileTimeout)},
	}
}

// analyze parses one file and runs the enabled rules over it. It returns an
// error only when ctx ends before every rule ran.
func (e *Engine) analyze(ctx context.Context, path string, content []byte, rs *lint.RuleSet) ([]core.Finding, bool, error) {
	unit, err := e.parser.Parse(path, content)
	if err != nil {
		e.logger.Debug("file parse error", "path", path, "error", err.Error())
		var span core.Span
		msg := err.Error()
		var parseErr *source.ParseError
		if errors.As(err, &parseErr) {
			span = core.Span{StartLine: parseErr.Line, StartColumn: parseErr.Column, EndLine: parseErr.Line, EndColumn: parseErr.Column}
			msg = parseErr.Message
		}
		return []core.Finding{degraded(path, core.KindUnparseable, RuleUnparseable, span, "cannot parse file: %s", msg)}, true, nil
	}
	for _, w := range unit.Warnings {
		e.logger.Debug("recoverable parse error", "path", path, "line", w.Span.StartLine, "message", w.Message)
	}

	var (
		findings   []core.Finding
		isDegraded bool
	)
	for _, entry := range rs.Enabled() {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		out, err := runRule(ctx, entry, unit)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, false, ctxErr
			}
			ruleErr := &lint.RuleError{RuleID: entry.Spec.ID, Path: path, Err: err}
			e.logger.Warn("rule failed", "rule", entry.Spec.ID, "path", path, "error", err)
			findings = append(findings, degraded(path, core.KindRuleError, entry.Spec.ID, core.Span{}, "%v", ruleErr))
			isDegraded = true
			continue
		}

		for _, f := range out {
			findings = append(findings, stamp(f, entry, path))
		}
	}
	return findings, isDegraded, nil
}

// runRule calls the rule and converts a panic into an error.
func runRule(ctx context.Context, entry lint.Entry, unit *source.Unit) (findings []core.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return entry.Rule.Check(ctx, unit, entry.Settings())
}

// stamp fills in the fields the engine owns.
func stamp(f core.Finding, entry lint.Entry, path string) core.Finding {
	if f.RuleID == "" {
		f.RuleID = entry.Spec.ID
	}
	if f.Kind == "" {
		f.Kind = core.KindViolation
	}
	if f.Source == "" {
		f.Source = core.SourceEngine
	}
	if f.Path == "" {
		f.Path = path
	}
	f.Severity = entry.Spec.Severity
	return f
}

func degraded(path string, kind core.FindingKind, ruleID string, span core.Span, format string, args ...any) core.Finding {
	return core.Finding{
		RuleID:   ruleID,
		Kind:     kind,
		Source:   core.SourceEngine,
		Path:     path,
		Span:     span,
		Severity: core.SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimPrefix(filepath.ToSlash(p), "./")
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
