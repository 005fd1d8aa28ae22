// Package vcs reads change information from git.
//
// It shells out to the git binary so that behavior matches what the user
// sees on the command line (including their config and .gitignore).
package vcs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotRepository is returned when a directory is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Runner executes git with args in dir and returns its standard output.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// Git queries one work tree.
type Git struct {
	dir    string
	root   string
	run    Runner
	logger *slog.Logger
}

// Config configures Open.
type Config struct {
	// Dir is the directory git commands run in. Paths are reported relative to it.
	Dir string
	// Runner overrides command execution (default: the git binary).
	Runner Runner
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Open returns a Git for the work tree containing cfg.Dir. It returns an
// error wrapping ErrNotRepository when there is none.
func Open(ctx context.Context, cfg Config) (*Git, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	run := cfg.Runner
	if run == nil {
		run = execGit
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}

	out, err := run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", dir, ErrNotRepository, err)
	}
	root := strings.TrimSpace(string(out))
	logger.Debug("opened git repository", "dir", dir, "root", root)

	return &Git{dir: dir, root: root, run: run, logger: logger}, nil
}

// Root returns the top-level directory of the work tree.
func (g *Git) Root() string {
	return g.root
}

// ChangedFiles lists the files that differ between two revisions, relative
// to the configured directory. An empty to compares from against the work
// tree; empty from and to list uncommitted changes including untracked
// files. Deleted files are included; callers find them missing on disk.
func (g *Git) ChangedFiles(ctx context.Context, from, to string) ([]string, error) {
	args := []string{"diff", "--name-only", "--relative"}
	switch {
	case from == "" && to == "":
		args = append(args, "HEAD")
	case to == "":
		args = append(args, from)
	default:
		args = append(args, from, to)
	}
	args = append(args, "--")

	out, err := g.run(ctx, g.dir, args...)
	if err != nil {
		return nil, fmt.Errorf("git diff: %w", err)
	}
	paths := splitLines(out)

	if from == "" && to == "" {
		untracked, err := g.run(ctx, g.dir, "ls-files", "--others", "--exclude-standard")
		if err != nil {
			return nil, fmt.Errorf("git ls-files: %w", err)
		}
		paths = append(paths, splitLines(untracked)...)
	}

	paths = dedupe(paths)
	g.logger.Debug("changed files", "from", from, "to", to, "count", len(paths))
	return paths, nil
}

// LastModified returns the committer time of the last commit touching path.
// The zero time means path has no history (for example, untracked files).
func (g *Git) LastModified(ctx context.Context, path string) (time.Time, error) {
	out, err := g.run(ctx, g.dir, "log", "-1", "--format=%ct", "--", path)
	if err != nil {
		return time.Time{}, fmt.Errorf("git log %s: %w", path, err)
	}
	s := strings.TrimSpace(string(out))
	if s == "" {
		return time.Time{}, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("git log %s: unexpected output %q", path, s)
	}
	return time.Unix(secs, 0), nil
}

// Authors counts the lines of path last changed by each author.
func (g *Git) Authors(ctx context.Context, path string) (map[string]int, error) {
	out, err := g.run(ctx, g.dir, "blame", "--line-porcelain", "--", path)
	if err != nil {
		return nil, fmt.Errorf("git blame %s: %w", path, err)
	}
	return parseBlameAuthors(out), nil
}

// MostFrequentAuthor returns the author of most lines of path. Ties go to
// the alphabetically first name. It returns "" when path has no history.
func (g *Git) MostFrequentAuthor(ctx context.Context, path string) (string, error) {
	authors, err := g.Authors(ctx, path)
	if err != nil {
		return "", err
	}
	return mostFrequent(authors), nil
}

// IsStale reports whether last is more than days whole days before now.
// A zero last is never stale.
func IsStale(last, now time.Time, days int) bool {
	if last.IsZero() {
		return false
	}
	age := int(now.Sub(last).Hours() / 24)
	return age > days
}

// ParseRange splits "from..to" (or a single revision) for ChangedFiles.
func ParseRange(spec string) (from, to string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", nil
	}
	if strings.Contains(spec, "...") {
		return "", "", fmt.Errorf("invalid revision range %q: use from..to", spec)
	}
	from, to, found := strings.Cut(spec, "..")
	if !found {
		return spec, "", nil
	}
	if from == "" {
		return "", "", fmt.Errorf("invalid revision range %q: missing start revision", spec)
	}
	return from, to, nil
}

func parseBlameAuthors(out []byte) map[string]int {
	authors := make(map[string]int)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "author "); ok {
			authors[name]++
		}
	}
	return authors
}

func mostFrequent(counts map[string]int) string {
	best, bestCount := "", 0
	for name, n := range counts {
		if n > bestCount || (n == bestCount && name < best) {
			best, bestCount = name, n
		}
	}
	return best
}

func splitLines(out []byte) []string {
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func dedupe(paths []string) []string {
	sort.Strings(paths)
	out := paths[:0]
	for i, p := range paths {
		if i > 0 && p == paths[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func execGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
