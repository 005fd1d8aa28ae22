// Package testutil provides fixtures and assertions for CLI tests.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/grumpy/internal/cli/output"
)

// TangledSource has one function with cyclomatic complexity 7.
const TangledSource = `package sample

func tangled(a, b, c int) int {
	if a > 0 {
		return 1
	}
	if b > 0 {
		return 2
	}
	for i := 0; i < c; i++ {
		if i%2 == 0 && a < 0 {
			continue
		}
	}
	switch c {
	case 1:
		return 3
	}
	return 0
}
`

// CleanSource has nothing to complain about.
const CleanSource = `package sample

func add(a, b int) int {
	return a + b
}
`

// WriteFile writes content to root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// SetupTestProject creates a temporary project with a grumpy.yaml using
// the given YAML (may be empty), one tangled and one clean Go file, plus
// an ignored vendor file.
func SetupTestProject(t *testing.T, yaml string) string {
	t.Helper()

	dir := t.TempDir()
	if yaml != "" {
		WriteFile(t, dir, "grumpy.yaml", yaml)
	}
	WriteFile(t, dir, "tangled.go", TangledSource)
	WriteFile(t, dir, "pkg/clean.go", CleanSource)
	WriteFile(t, dir, "vendor/dep/dep.go", TangledSource)
	return dir
}

// TestRenderer wraps a Renderer whose output is captured in buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a test renderer with the given mode and TTY state.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a text renderer on a simulated TTY.
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a markdown renderer.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a JSON renderer.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns what was written to stdout.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns what was written to stderr.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape codes.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// AssertNoANSI checks that s contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	assert.False(t, ansiPattern.MatchString(s), "string contains ANSI escape codes: %q", s)
}

// AssertValidMarkdown checks for balanced code fences and non-empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	assert.Zero(t, strings.Count(md, "```")%2, "unbalanced code fences in markdown")
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
