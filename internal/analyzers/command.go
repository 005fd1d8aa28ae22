// Package analyzers adapts external tools to the engine's Analyzer
// interface. Their diagnostics become findings of kind external.
package analyzers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/grumpy/internal/engine"
	"github.com/leapstack-labs/grumpy/pkg/core"
)

// Names of the built-in analyzers accepted by New.
const (
	NameGoVet = "go vet"
	NameGofmt = "gofmt"
)

// Runner executes a program in dir and returns stdout, stderr and the
// exit error.
type Runner func(ctx context.Context, dir, program string, args ...string) (stdout, stderr []byte, err error)

// Command runs a program over the Go files of a pass.
type Command struct {
	name     string
	program  string
	args     func(paths []string) []string
	parse    func(stdout, stderr []byte) []core.Finding
	severity core.Severity
	run      Runner
}

var _ engine.Analyzer = (*Command)(nil)

// New returns the built-in analyzer called name.
func New(name string, run Runner) (*Command, error) {
	if run == nil {
		run = execRunner
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameGoVet, "vet", "govet":
		return &Command{
			name:     NameGoVet,
			program:  "go",
			args:     func(paths []string) []string { return append([]string{"vet"}, packageArgs(paths)...) },
			parse:    func(_, stderr []byte) []core.Finding { return parseDiagnostics(stderr) },
			severity: core.SeverityWarning,
			run:      run,
		}, nil
	case NameGofmt, "fmt":
		return &Command{
			name:     NameGofmt,
			program:  "gofmt",
			args:     func(paths []string) []string { return append([]string{"-l"}, paths...) },
			parse:    parseUnformatted,
			severity: core.SeverityInfo,
			run:      run,
		}, nil
	default:
		return nil, fmt.Errorf("unknown external analyzer %q (want %q or %q)", name, NameGoVet, NameGofmt)
	}
}

// Name implements engine.Analyzer.
func (c *Command) Name() string {
	return c.name
}

// Analyze runs the program in root over the Go files among paths. A
// non-zero exit without diagnostics is a failure.
func (c *Command) Analyze(ctx context.Context, root string, paths []string) ([]core.Finding, error) {
	goFiles := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasSuffix(p, ".go") {
			goFiles = append(goFiles, p)
		}
	}
	if len(goFiles) == 0 {
		return nil, nil
	}

	stdout, stderr, err := c.run(ctx, root, c.program, c.args(goFiles)...)
	findings := c.parse(stdout, stderr)
	if err != nil && len(findings) == 0 {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", c.name, err, firstLine(msg))
	}

	for i := range findings {
		findings[i].Source = c.name
		findings[i].RuleID = strings.ReplaceAll(c.name, " ", "-")
		findings[i].Severity = c.severity
	}
	return findings, nil
}

// packageArgs turns file paths into "./dir" package patterns.
func packageArgs(paths []string) []string {
	seen := make(map[string]bool)
	var pkgs []string
	for _, p := range paths {
		dir := "./" + path.Dir(p)
		if dir == "./." {
			dir = "."
		}
		if !seen[dir] {
			seen[dir] = true
			pkgs = append(pkgs, dir)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

var diagnosticLine = regexp.MustCompile(`^(.+?\.go):(\d+)(?::(\d+))?: (.+)$`)

// parseDiagnostics reads "file:line[:col]: message" lines. Package headers
// ("# pkg") and other noise are skipped.
func parseDiagnostics(out []byte) []core.Finding {
	var findings []core.Finding
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := diagnosticLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		findings = append(findings, core.Finding{
			Path:    strings.TrimPrefix(m[1], "./"),
			Span:    core.Span{StartLine: lineNo, StartColumn: col, EndLine: lineNo, EndColumn: col},
			Message: m[4],
		})
	}
	return findings
}

// parseUnformatted reads gofmt -l output, one file per line.
func parseUnformatted(stdout, _ []byte) []core.Finding {
	var findings []core.Finding
	for _, line := range strings.Split(string(stdout), "\n") {
		p := strings.TrimSpace(line)
		if p == "" {
			continue
		}
		findings = append(findings, core.Finding{
			Path:    strings.TrimPrefix(p, "./"),
			Message: "file is not gofmt-formatted",
		})
	}
	return findings
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func execRunner(ctx context.Context, dir, program string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, nil, err
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
