package analyzers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/grumpy/internal/testutil"
	"github.com/leapstack-labs/grumpy/pkg/core"
)

type recordedRun struct {
	dir     string
	program string
	args    []string
}

func fakeRunner(stdout, stderr string, err error, rec *recordedRun) Runner {
	return func(_ context.Context, dir, program string, args ...string) ([]byte, []byte, error) {
		if rec != nil {
			*rec = recordedRun{dir: dir, program: program, args: args}
		}
		return []byte(stdout), []byte(stderr), err
	}
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("clippy", nil)
	assert.ErrorContains(t, err, `unknown external analyzer "clippy"`)
}

func TestGoVet_ParsesDiagnostics(t *testing.T) {
	stderr := "# example.com/pkg\n" +
		"./pkg/a.go:12:2: unreachable code\n" +
		"main.go:3: printf format %d has arg of wrong type\n" +
		"vet: some noise\n"

	var rec recordedRun
	vet, err := New("vet", fakeRunner("", stderr, errors.New("exit status 1"), &rec))
	require.NoError(t, err)
	assert.Equal(t, NameGoVet, vet.Name())

	findings, err := vet.Analyze(context.Background(), "/src", []string{"pkg/a.go", "main.go", "pkg/b.go", "README.md"})
	require.NoError(t, err)

	assert.Equal(t, "/src", rec.dir)
	assert.Equal(t, "go", rec.program)
	assert.Equal(t, []string{"vet", ".", "./pkg"}, rec.args)

	require.Len(t, findings, 2)
	assert.Equal(t, core.Finding{
		RuleID:   "go-vet",
		Source:   NameGoVet,
		Path:     "pkg/a.go",
		Span:     core.Span{StartLine: 12, StartColumn: 2, EndLine: 12, EndColumn: 2},
		Severity: core.SeverityWarning,
		Message:  "unreachable code",
	}, findings[0])
	assert.Equal(t, "main.go", findings[1].Path)
	assert.Equal(t, 0, findings[1].Span.StartColumn)
}

func TestGoVet_FailureWithoutDiagnostics(t *testing.T) {
	vet, err := New(NameGoVet, fakeRunner("", "go: cannot find main module\nmore\n", errors.New("exit status 1"), nil))
	require.NoError(t, err)

	_, err = vet.Analyze(context.Background(), ".", []string{"a.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot find main module")
	assert.NotContains(t, err.Error(), "more")
}

func TestGoVet_SkipsWithoutGoFiles(t *testing.T) {
	called := false
	vet, err := New(NameGoVet, func(context.Context, string, string, ...string) ([]byte, []byte, error) {
		called = true
		return nil, nil, nil
	})
	require.NoError(t, err)

	findings, err := vet.Analyze(context.Background(), ".", []string{"notes.md"})
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.False(t, called)
}

func TestGofmt(t *testing.T) {
	var rec recordedRun
	fmtr, err := New("fmt", fakeRunner("b.go\n", "", nil, &rec))
	require.NoError(t, err)

	findings, err := fmtr.Analyze(context.Background(), ".", []string{"a.go", "b.go"})
	require.NoError(t, err)

	assert.Equal(t, []string{"-l", "a.go", "b.go"}, rec.args)
	require.Len(t, findings, 1)
	assert.Equal(t, "b.go", findings[0].Path)
	assert.Equal(t, core.SeverityInfo, findings[0].Severity)
	assert.Equal(t, NameGofmt, findings[0].Source)
}

type fakeHistory struct {
	last    map[string]time.Time
	authors map[string]string
}

func (f *fakeHistory) LastModified(_ context.Context, path string) (time.Time, error) {
	ts, ok := f.last[path]
	if !ok {
		return time.Time{}, errors.New("no such path")
	}
	return ts, nil
}

func (f *fakeHistory) MostFrequentAuthor(_ context.Context, path string) (string, error) {
	return f.authors[path], nil
}

func TestGitStale(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{
		last: map[string]time.Time{
			"old.go":       now.AddDate(0, 0, -30),
			"fresh.go":     now.AddDate(0, 0, -1),
			"untracked.go": {},
			"orphan.go":    now.AddDate(0, 0, -10),
		},
		authors: map[string]string{"old.go": "Ada"},
	}

	g := NewGitStale(history, 0, testutil.NewTestLogger(t))
	g.now = func() time.Time { return now }

	findings, err := g.Analyze(context.Background(), ".", []string{"fresh.go", "missing.go", "old.go", "orphan.go", "untracked.go"})
	require.NoError(t, err)

	require.Len(t, findings, 3)
	assert.Equal(t, RuleGitStale, findings[0].RuleID)
	assert.Equal(t, "old.go", findings[0].Path)
	assert.Equal(t, "30", findings[0].Param("days"))
	assert.Equal(t, core.SeverityInfo, findings[0].Severity)

	assert.Equal(t, RuleGitAuthor, findings[1].RuleID)
	assert.Equal(t, "Ada", findings[1].Param("author"))

	assert.Equal(t, RuleGitStale, findings[2].RuleID)
	assert.Equal(t, "orphan.go", findings[2].Path)
}
