package analyzers

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/leapstack-labs/grumpy/internal/engine"
	"github.com/leapstack-labs/grumpy/internal/vcs"
	"github.com/leapstack-labs/grumpy/pkg/core"
)

// Rule IDs of the git annotations.
const (
	RuleGitStale  = "git-stale"
	RuleGitAuthor = "git-author"
	SourceGit     = "git"
)

// DefaultStaleDays is the age after which a file counts as stale.
const DefaultStaleDays = 7

// History is the subset of *vcs.Git the stale annotator needs.
type History interface {
	LastModified(ctx context.Context, path string) (time.Time, error)
	MostFrequentAuthor(ctx context.Context, path string) (string, error)
}

// GitStale annotates files that have not been committed to for a while,
// naming the author of most of their lines.
type GitStale struct {
	history   History
	staleDays int
	now       func() time.Time
	logger    *slog.Logger
}

var _ engine.Analyzer = (*GitStale)(nil)

// NewGitStale returns a stale-file annotator. Non-positive staleDays uses
// DefaultStaleDays.
func NewGitStale(history History, staleDays int, logger *slog.Logger) *GitStale {
	if staleDays <= 0 {
		staleDays = DefaultStaleDays
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GitStale{history: history, staleDays: staleDays, now: time.Now, logger: logger}
}

// Name implements engine.Analyzer.
func (g *GitStale) Name() string {
	return SourceGit
}

// Analyze emits a git-stale and a git-author finding per stale path.
// Paths git cannot answer for are skipped.
func (g *GitStale) Analyze(ctx context.Context, _ string, paths []string) ([]core.Finding, error) {
	now := g.now()
	var findings []core.Finding
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		last, err := g.history.LastModified(ctx, p)
		if err != nil {
			g.logger.Debug("no git history", "path", p, "error", err)
			continue
		}
		if !vcs.IsStale(last, now, g.staleDays) {
			continue
		}

		days := int(now.Sub(last).Hours() / 24)
		findings = append(findings, core.Finding{
			RuleID:   RuleGitStale,
			Source:   SourceGit,
			Path:     p,
			Severity: core.SeverityInfo,
			Message:  "file has not been committed to in " + strconv.Itoa(days) + " days",
			Params:   map[string]string{"days": strconv.Itoa(days), "limit": strconv.Itoa(g.staleDays)},
		})

		author, err := g.history.MostFrequentAuthor(ctx, p)
		if err != nil || author == "" {
			g.logger.Debug("no blame information", "path", p, "error", err)
			continue
		}
		findings = append(findings, core.Finding{
			RuleID:   RuleGitAuthor,
			Source:   SourceGit,
			Path:     p,
			Severity: core.SeverityInfo,
			Message:  "file mostly edited by " + author,
			Params:   map[string]string{"author": author},
		})
	}
	return findings, nil
}
