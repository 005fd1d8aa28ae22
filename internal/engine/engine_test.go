package engine_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/grumpy/internal/changes"
	"github.com/leapstack-labs/grumpy/internal/engine"
	"github.com/leapstack-labs/grumpy/internal/testutil"
	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/lint"
	"github.com/leapstack-labs/grumpy/pkg/source"
)

// markerRule reports every occurrence of its marker word.
type markerRule struct {
	lint.Base
	marker string
}

func (r *markerRule) Check(_ context.Context, unit *source.Unit, _ lint.Settings) ([]core.Finding, error) {
	var findings []core.Finding
	for i, line := range strings.Split(unit.Text(), "\n") {
		if col := strings.Index(line, r.marker); col >= 0 {
			findings = append(findings, core.Finding{
				Span:    core.Span{StartLine: i + 1, StartColumn: col + 1, EndLine: i + 1, EndColumn: col + 1 + len(r.marker)},
				Message: "found " + r.marker,
			})
		}
	}
	return findings, nil
}

// funcRule delegates Check to a function.
type funcRule struct {
	lint.Base
	check func(ctx context.Context, unit *source.Unit) ([]core.Finding, error)
}

func (r *funcRule) Check(ctx context.Context, unit *source.Unit, _ lint.Settings) ([]core.Finding, error) {
	return r.check(ctx, unit)
}

type countingParser struct {
	calls atomic.Int64
}

func (p *countingParser) Parse(path string, content []byte) (*source.Unit, error) {
	p.calls.Add(1)
	return source.Parse(path, content)
}

func entry(r lint.Rule, spec lint.Spec) lint.Entry {
	spec.Enabled = true
	return lint.Entry{Rule: r, Spec: spec}
}

func marker(id, word string, sev core.Severity) lint.Entry {
	spec := lint.Spec{ID: id, Kind: "test", Severity: sev}
	return entry(&markerRule{Base: lint.NewBase(spec), marker: word}, spec)
}

func custom(id string, check func(ctx context.Context, unit *source.Unit) ([]core.Finding, error)) lint.Entry {
	spec := lint.Spec{ID: id, Kind: "test", Severity: core.SeverityWarning}
	return entry(&funcRule{Base: lint.NewBase(spec), check: check}, spec)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
}

var sampleFiles = map[string]string{
	"a.go":     "package a\n\n// bad\nfunc A() {}\n",
	"b.go":     "package b\n\nfunc B() {} // bad\n// ugly\n",
	"c/c.go":   "package c\n\nfunc C() {}\n",
	"notes.md": "bad notes\n",
}

var samplePaths = []string{"a.go", "b.go", "c/c.go", "notes.md"}

func sampleRuleSet() *lint.RuleSet {
	return lint.NewRuleSet([]lint.Entry{
		marker("no-bad", "bad", core.SeverityError),
		marker("no-ugly", "ugly", core.SeverityInfo),
	})
}

func newEngine(t *testing.T, root string, cfg engine.Config) *engine.Engine {
	t.Helper()
	cfg.Root = root
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewTestLogger(t)
	}
	return engine.New(cfg)
}

func TestEvaluate_Findings(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	e := newEngine(t, root, engine.Config{})

	result, err := e.Evaluate(context.Background(), samplePaths, sampleRuleSet(), nil)
	require.NoError(t, err)

	require.Len(t, result.Findings, 4)
	got := make([]string, 0, len(result.Findings))
	for _, f := range result.Findings {
		got = append(got, f.Path+":"+f.Span.String()+":"+f.RuleID)
		assert.Equal(t, core.KindViolation, f.Kind)
		assert.Equal(t, core.SourceEngine, f.Source)
	}
	assert.Equal(t, []string{"a.go:3:4:no-bad", "b.go:3:16:no-bad", "b.go:4:4:no-ugly", "notes.md:1:1:no-bad"}, got)
	assert.Equal(t, core.SeverityError, result.Findings[0].Severity)
	assert.Equal(t, core.SeverityInfo, result.Findings[2].Severity)

	assert.Equal(t, 4, result.Stats.Files)
	assert.Equal(t, 4, result.Stats.Evaluated)
	assert.Equal(t, 4, result.Cache.Len())
}

func TestEvaluate_DeterministicAcrossOrderAndWorkers(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	rs := sampleRuleSet()

	baseline, err := newEngine(t, root, engine.Config{Workers: 1}).Evaluate(context.Background(), samplePaths, rs, nil)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := append([]string(nil), samplePaths...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		result, err := newEngine(t, root, engine.Config{Workers: 8}).Evaluate(context.Background(), shuffled, rs, nil)
		require.NoError(t, err)
		assert.Equal(t, baseline.Findings, result.Findings)
	}
}

func TestEvaluate_CacheSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	parser := &countingParser{}
	e := newEngine(t, root, engine.Config{Parser: parser})
	rs := sampleRuleSet()

	first, err := e.Evaluate(context.Background(), samplePaths, rs, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), parser.calls.Load())

	second, err := e.Evaluate(context.Background(), samplePaths, rs, first.Cache)
	require.NoError(t, err)
	assert.Equal(t, int64(4), parser.calls.Load(), "unchanged files must not be parsed again")
	assert.Equal(t, first.Findings, second.Findings)
	assert.Equal(t, 4, second.Stats.Cached)

	writeFiles(t, root, map[string]string{"c/c.go": "package c\n\n// bad\n"})
	third, err := e.Evaluate(context.Background(), samplePaths, rs, second.Cache)
	require.NoError(t, err)
	assert.Equal(t, int64(5), parser.calls.Load())
	assert.Len(t, third.Findings, 5)
	assert.Equal(t, 1, third.Stats.Evaluated)
}

func TestEvaluate_RuleSetChangeInvalidatesCache(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	parser := &countingParser{}
	e := newEngine(t, root, engine.Config{Parser: parser})

	first, err := e.Evaluate(context.Background(), samplePaths, sampleRuleSet(), nil)
	require.NoError(t, err)

	stricter := lint.NewRuleSet([]lint.Entry{
		marker("no-bad", "bad", core.SeverityError),
		marker("no-ugly", "ugly", core.SeverityWarning),
	})
	require.NotEqual(t, sampleRuleSet().Fingerprint(), stricter.Fingerprint())

	second, err := e.Evaluate(context.Background(), samplePaths, stricter, first.Cache)
	require.NoError(t, err)
	assert.Equal(t, int64(8), parser.calls.Load())
	assert.Equal(t, core.SeverityWarning, second.Findings[2].Severity)
	assert.Equal(t, stricter.Fingerprint(), second.Cache.Fingerprint)
}

func TestEvaluate_RuleFailuresAreIsolated(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.go": "package a\n// bad\n",
		"b.go": "package b\n",
	})

	rs := lint.NewRuleSet([]lint.Entry{
		marker("no-bad", "bad", core.SeverityError),
		custom("panics", func(context.Context, *source.Unit) ([]core.Finding, error) {
			panic("nil map")
		}),
		custom("errors", func(_ context.Context, unit *source.Unit) ([]core.Finding, error) {
			if unit.Path == "b.go" {
				return nil, errors.New("cannot handle b")
			}
			return nil, nil
		}),
	})

	result, err := newEngine(t, root, engine.Config{}).Evaluate(context.Background(), []string{"a.go", "b.go"}, rs, nil)
	require.NoError(t, err)

	var ruleErrors, violations []core.Finding
	for _, f := range result.Findings {
		switch f.Kind {
		case core.KindRuleError:
			ruleErrors = append(ruleErrors, f)
		case core.KindViolation:
			violations = append(violations, f)
		}
	}

	require.Len(t, violations, 1)
	assert.Equal(t, "a.go", violations[0].Path)

	require.Len(t, ruleErrors, 3)
	assert.Equal(t, "a.go", ruleErrors[0].Path)
	assert.Equal(t, "panics", ruleErrors[0].RuleID)
	assert.Contains(t, ruleErrors[0].Message, "panic: nil map")
	assert.Equal(t, "errors", ruleErrors[1].RuleID)
	assert.Contains(t, ruleErrors[1].Message, "cannot handle b")
	assert.Equal(t, "panics", ruleErrors[2].RuleID)
	assert.Equal(t, 2, result.Stats.Degraded)
}

func TestEvaluate_UnparseableFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"broken.go": "this is not go\n",
		"ok.go":     "package ok\n// bad\n",
	})

	result, err := newEngine(t, root, engine.Config{}).Evaluate(context.Background(), []string{"broken.go", "ok.go"}, sampleRuleSet(), nil)
	require.NoError(t, err)

	require.Len(t, result.Findings, 2)
	broken := result.Findings[0]
	assert.Equal(t, "broken.go", broken.Path)
	assert.Equal(t, core.KindUnparseable, broken.Kind)
	assert.Equal(t, engine.RuleUnparseable, broken.RuleID)
	assert.Equal(t, 1, broken.Span.StartLine)
	assert.Equal(t, core.SeverityError, broken.Severity)

	assert.Equal(t, "ok.go", result.Findings[1].Path)
	assert.Equal(t, core.KindViolation, result.Findings[1].Kind)
}

func TestEvaluate_FileTimeout(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"slow.go": "package slow\n", "fast.go": "package fast\n// bad\n"})

	rs := lint.NewRuleSet([]lint.Entry{
		marker("no-bad", "bad", core.SeverityError),
		custom("slow", func(ctx context.Context, unit *source.Unit) ([]core.Finding, error) {
			if unit.Path != "slow.go" {
				return nil, nil
			}
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})

	e := newEngine(t, root, engine.Config{FileTimeout: 50 * time.Millisecond})
	result, err := e.Evaluate(context.Background(), []string{"fast.go", "slow.go"}, rs, nil)
	require.NoError(t, err)

	require.Len(t, result.Findings, 2)
	assert.Equal(t, "fast.go", result.Findings[0].Path)
	timeout := result.Findings[1]
	assert.Equal(t, "slow.go", timeout.Path)
	assert.Equal(t, core.KindTimeout, timeout.Kind)
	assert.Equal(t, engine.RuleTimeout, timeout.RuleID)

	_, cached := result.Cache.Entries["slow.go"]
	assert.False(t, cached, "timed out files are retried on the next pass")
	_, cached = result.Cache.Entries["fast.go"]
	assert.True(t, cached)

	// a hole in the cache cannot back an incremental pass
	all, err := e.EvaluateAll(context.Background(), nil, rs, result.Cache)
	require.NoError(t, err)
	assert.False(t, all.Cache.Covers(rs.Fingerprint()))
}

func TestEvaluate_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(t, root, engine.Config{}).Evaluate(ctx, samplePaths, sampleRuleSet(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_MinSeverity(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	threshold := core.SeverityError

	e := newEngine(t, root, engine.Config{MinSeverity: &threshold})
	result, err := e.Evaluate(context.Background(), samplePaths, sampleRuleSet(), nil)
	require.NoError(t, err)

	require.Len(t, result.Findings, 3)
	for _, f := range result.Findings {
		assert.Equal(t, "no-bad", f.RuleID)
	}
	// the cache keeps unfiltered findings
	assert.Len(t, result.Cache.Entries["b.go"].Findings, 2)
}

func TestEvaluate_MissingFileIsDropped(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)

	result, err := newEngine(t, root, engine.Config{}).Evaluate(context.Background(), []string{"a.go", "gone.go"}, sampleRuleSet(), nil)
	require.NoError(t, err)
	assert.Len(t, result.Findings, 1)
	assert.Equal(t, []string{"a.go"}, result.Cache.Paths())
}

type fakeAnalyzer struct {
	name     string
	findings []core.Finding
	err      error
	paths    []string
}

func (a *fakeAnalyzer) Name() string { return a.name }

func (a *fakeAnalyzer) Analyze(_ context.Context, _ string, paths []string) ([]core.Finding, error) {
	a.paths = paths
	return a.findings, a.err
}

func TestEvaluate_ExternalAnalyzers(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)

	vet := &fakeAnalyzer{
		name: "go vet",
		findings: []core.Finding{
			{Path: "./a.go", Span: core.Span{StartLine: 4, StartColumn: 1}, Severity: core.SeverityWarning, Message: "unreachable code"},
			{Path: "elsewhere.go", Span: core.Span{StartLine: 1}, Severity: core.SeverityWarning, Message: "ignored"},
		},
	}
	broken := &fakeAnalyzer{name: "broken", err: errors.New("exit status 2")}

	e := newEngine(t, root, engine.Config{Analyzers: []engine.Analyzer{vet, broken}})
	result, err := e.Evaluate(context.Background(), samplePaths, sampleRuleSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, samplePaths, vet.paths)
	require.Len(t, result.Findings, 5)
	require.Len(t, result.Analyzers, 2)
	assert.Equal(t, engine.AnalyzerRun{Name: "go vet", Findings: 1}, result.Analyzers[0])
	assert.Error(t, result.Analyzers[1].Err)

	ext := result.Findings[1]
	assert.Equal(t, "a.go", ext.Path)
	assert.Equal(t, core.KindExternal, ext.Kind)
	assert.Equal(t, "go vet", ext.Source)
	assert.Equal(t, "go vet", ext.RuleID)

	// a cached pass re-emits external findings without running analyzers
	vet.paths = nil
	again, err := e.Evaluate(context.Background(), samplePaths, sampleRuleSet(), result.Cache)
	require.NoError(t, err)
	assert.Nil(t, vet.paths)
	assert.Empty(t, again.Analyzers)
	assert.Equal(t, result.Findings, again.Findings)
}

func TestEvaluateChanges_Incremental(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	parser := &countingParser{}
	e := newEngine(t, root, engine.Config{Parser: parser})
	rs := sampleRuleSet()

	full, err := e.EvaluateAll(context.Background(), nil, rs, nil)
	require.NoError(t, err)
	require.True(t, full.Cache.Covers(rs.Fingerprint()))

	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	writeFiles(t, root, map[string]string{"a.go": "package a\n"})

	cs := changes.ChangeSet{Seq: 1, Dirty: []string{"a.go"}, Deleted: []string{"b.go"}}
	result, err := e.EvaluateChanges(context.Background(), cs, rs, full.Cache)
	require.NoError(t, err)

	assert.Equal(t, int64(5), parser.calls.Load(), "only the dirty file is parsed")
	assert.False(t, result.Partial)
	assert.True(t, result.Cache.Complete)
	assert.Equal(t, []string{"a.go", "c/c.go", "notes.md"}, result.Cache.Paths())
	assert.Equal(t, 1, result.Stats.Deleted)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, "notes.md", result.Findings[0].Path)

	// the previous cache is untouched
	assert.Equal(t, 4, full.Cache.Len())
}

func TestEvaluateChanges_DirtyButDeletedOnDisk(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	e := newEngine(t, root, engine.Config{})
	rs := sampleRuleSet()

	full, err := e.EvaluateAll(context.Background(), nil, rs, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "a.go")))

	result, err := e.EvaluateChanges(context.Background(), changes.ChangeSet{Dirty: []string{"a.go"}}, rs, full.Cache)
	require.NoError(t, err)
	for _, f := range result.Findings {
		assert.NotEqual(t, "a.go", f.Path)
	}
	assert.Equal(t, 3, result.Cache.Len())
}

func TestEvaluateAll_CompleteCache(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	e := newEngine(t, root, engine.Config{})
	rs := sampleRuleSet()

	all, err := e.EvaluateAll(context.Background(), nil, rs, nil)
	require.NoError(t, err)
	assert.Equal(t, samplePaths, all.Cache.Paths())
	assert.True(t, all.Cache.Covers(rs.Fingerprint()))

	some, err := e.Evaluate(context.Background(), []string{"a.go"}, rs, nil)
	require.NoError(t, err)
	assert.False(t, some.Cache.Covers(rs.Fingerprint()), "an explicit path list may not be the whole working set")
}

func TestEvaluateChanges_RuleSetChanged(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	e := newEngine(t, root, engine.Config{})
	rs := sampleRuleSet()

	full, err := e.EvaluateAll(context.Background(), nil, rs, nil)
	require.NoError(t, err)
	require.Len(t, full.Findings, 4)

	stricter := lint.NewRuleSet([]lint.Entry{
		marker("no-bad", "bad", core.SeverityError),
		marker("no-ugly", "ugly", core.SeverityInfo),
		marker("no-func", "func", core.SeverityWarning),
	})
	require.NotEqual(t, rs.Fingerprint(), stricter.Fingerprint())
	assert.False(t, full.Cache.Covers(stricter.Fingerprint()))

	// the old findings cannot be re-emitted, so the result says so
	result, err := e.EvaluateChanges(context.Background(), changes.ChangeSet{Dirty: []string{"c/c.go"}}, stricter, full.Cache)
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.False(t, result.Cache.Complete)
	assert.Equal(t, []string{"c/c.go"}, result.Cache.Paths())
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "no-func", result.Findings[0].RuleID)

	// a full pass restores the whole working set, error findings included
	again, err := e.EvaluateAll(context.Background(), nil, stricter, result.Cache)
	require.NoError(t, err)
	assert.False(t, again.Partial)
	assert.Len(t, again.Findings, 7)
	assert.True(t, core.HasErrors(again.Findings))
	assert.True(t, again.Cache.Covers(stricter.Fingerprint()))
}

func TestEvaluateChanges_IncompleteCache(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)
	e := newEngine(t, root, engine.Config{})
	rs := sampleRuleSet()

	some, err := e.Evaluate(context.Background(), []string{"a.go"}, rs, nil)
	require.NoError(t, err)

	result, err := e.EvaluateChanges(context.Background(), changes.ChangeSet{Dirty: []string{"c/c.go"}}, rs, some.Cache)
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.False(t, result.Cache.Complete)
	assert.Equal(t, []string{"a.go", "c/c.go"}, result.Cache.Paths())
}

func TestCache_Merge(t *testing.T) {
	prev := engine.NewCache("fp")
	prev.Complete = true
	prev.Entries["a.go"] = engine.CacheEntry{Hash: "a1"}
	prev.Entries["b.go"] = engine.CacheEntry{Hash: "b1"}
	prev.Entries["c.go"] = engine.CacheEntry{Hash: "c1"}

	update := engine.NewCache("fp")
	update.Entries["a.go"] = engine.CacheEntry{Hash: "a2"}
	update.Entries["d.go"] = engine.CacheEntry{Hash: "d1"}

	// b.go was evaluated but is gone from update, so it no longer exists
	merged := prev.Merge(update, []string{"a.go", "b.go", "d.go"})
	assert.Equal(t, []string{"a.go", "c.go", "d.go"}, merged.Paths())
	assert.Equal(t, "a2", merged.Entries["a.go"].Hash)
	assert.True(t, merged.Complete)
	assert.Equal(t, 3, prev.Len(), "prev is not modified")

	other := engine.NewCache("fp-2")
	assert.Same(t, other, prev.Merge(other, nil))

	var none *engine.Cache
	assert.Same(t, update, none.Merge(update, nil))
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Name() string { return "panicky" }

func (panickingAnalyzer) Analyze(context.Context, string, []string) ([]core.Finding, error) {
	panic("boom")
}

func TestEvaluate_AnalyzerPanic(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleFiles)

	e := newEngine(t, root, engine.Config{Analyzers: []engine.Analyzer{panickingAnalyzer{}}})
	result, err := e.Evaluate(context.Background(), samplePaths, sampleRuleSet(), nil)
	require.NoError(t, err)

	assert.Len(t, result.Findings, 4)
	require.Len(t, result.Analyzers, 1)
	assert.Equal(t, "panicky", result.Analyzers[0].Name)
	assert.ErrorContains(t, result.Analyzers[0].Err, "panic: boom")
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go":           "package main\n",
		"pkg/a.go":          "package pkg\n",
		"pkg/a_test.go":     "package pkg\n",
		"vendor/dep/dep.go": "package dep\n",
		".git/hooks/x.go":   "package x\n",
		"README.md":         "# readme\n",
	})

	filter, err := changes.NewFilter([]string{"*.go"}, []string{"vendor/", "*_test.go"})
	require.NoError(t, err)

	paths, err := newEngine(t, root, engine.Config{}).Discover(filter)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "pkg/a.go"}, paths)
}

func TestDiscover_MissingRoot(t *testing.T) {
	_, err := newEngine(t, filepath.Join(t.TempDir(), "missing"), engine.Config{}).Discover(nil)
	assert.Error(t, err)
}
