package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/grumpy/internal/changes"
	"github.com/leapstack-labs/grumpy/internal/cli/output"
	"github.com/leapstack-labs/grumpy/internal/engine"
	"github.com/leapstack-labs/grumpy/internal/report"
	"github.com/leapstack-labs/grumpy/internal/vcs"
	"github.com/leapstack-labs/grumpy/pkg/core"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Diff  string   // Revision range, e.g. main..HEAD
	Paths []string // Explicit files, relative to the working directory
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}
	cmd := &cobra.Command{
		Use:   "check [paths...]",
		Short: "Analyze the project once",
		Long: `Run every enabled rule over the project and report the findings.

Without arguments all files matching watch_files are analyzed. With
--diff only the files changed in a revision range are re-evaluated;
findings of unchanged files come from the state database.

The exit status is 1 when any finding has error severity and 2 when
grumpy itself fails.`,
		Example: `  # Analyze the whole project
  grumpy check

  # Analyze specific files
  grumpy check internal/server.go

  # Re-evaluate files changed since main
  grumpy check --diff main..HEAD

  # Working tree changes, including untracked files
  grumpy check --diff ""

  # Machine-readable output
  grumpy check -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Paths = args
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Diff, "diff", "", `Only re-evaluate files changed in a revision range ("from..to", "from" or "" for the working tree)`)

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)
	cfg, logger := cc.Cfg, cc.Logger

	rs, err := loadRuleSet(cfg, logger)
	if err != nil {
		return err
	}
	filter, err := newFilter(cfg)
	if err != nil {
		return err
	}
	list, git, err := buildAnalyzers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	eng := newEngine(cfg, list, logger)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}
	prev := loadCache(store, rs.Fingerprint(), logger)
	recorder := passRecorder{store: store, logger: logger}

	var (
		result *engine.Result
		mode   string
	)
	diffMode := cmd.Flags().Changed("diff")
	passID := ""

	switch {
	case diffMode:
		mode = "diff"
		from, to, err := vcs.ParseRange(opts.Diff)
		if err != nil {
			return internal(err)
		}
		if git == nil {
			if git, err = openGit(ctx, cfg, logger); err != nil {
				return err
			}
		}
		diffPaths, err := git.ChangedFiles(ctx, from, to)
		if err != nil {
			return internal(err)
		}
		cs := changes.Compute(nil, diffPaths, filter)
		logger.Info("diff change set", "range", opts.Diff, "dirty", len(cs.Dirty), "deleted", len(cs.Deleted))
		passID = recorder.start(mode, rs.Fingerprint())
		if prev.Covers(rs.Fingerprint()) {
			result, err = eng.EvaluateChanges(ctx, cs, rs, prev)
		} else {
			// untouched files have no usable findings
			logger.Info("no complete cache for the current rules, checking every file")
			result, err = eng.EvaluateAll(ctx, filter, rs, prev)
		}
		recorder.finish(passID, result, err)
		if err != nil {
			return internal(err)
		}

	case len(opts.Paths) > 0:
		mode = "paths"
		targets, err := relativeTargets(cfg.ProjectRoot, opts.Paths)
		if err != nil {
			return internal(err)
		}
		passID = recorder.start(mode, rs.Fingerprint())
		result, err = eng.Evaluate(ctx, targets, rs, prev)
		if err == nil {
			// the stored cache keeps the rest of the working set
			result.Cache = prev.Merge(result.Cache, targets)
		}
		recorder.finish(passID, result, err)
		if err != nil {
			return internal(err)
		}

	default:
		mode = "full"
		passID = recorder.start(mode, rs.Fingerprint())
		result, err = eng.EvaluateAll(ctx, filter, rs, prev)
		recorder.finish(passID, result, err)
		if err != nil {
			return internal(err)
		}
	}

	if err := renderResult(cc, result); err != nil {
		return internal(err)
	}
	if core.HasErrors(result.Findings) {
		return &ExitError{Code: ExitFindings, Err: ErrFindings}
	}
	return nil
}

// relativeTargets converts command-line paths into root-relative slash
// paths.
func relativeTargets(root string, paths []string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil {
			return nil, err
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%s is outside the project root %s", p, root)
		}
		targets = append(targets, filepath.ToSlash(rel))
	}
	return targets, nil
}

// renderResult presents the findings of a pass in the configured tone.
func renderResult(cc *CommandContext, result *engine.Result) error {
	tone := cc.Cfg.Tone()

	analyzerOut := make([]output.AnalyzerOutput, 0, len(result.Analyzers))
	for _, run := range result.Analyzers {
		a := output.AnalyzerOutput{
			Name:     run.Name,
			Findings: run.Findings,
			Text:     report.AnalyzerStatus(run.Name, run.Findings, run.Err, tone),
		}
		if run.Err != nil {
			a.Error = run.Err.Error()
		}
		analyzerOut = append(analyzerOut, a)
	}

	stats := result.Stats
	summary := output.CheckSummary{
		Files:      stats.Files,
		Evaluated:  stats.Evaluated,
		Cached:     stats.Cached,
		Deleted:    stats.Deleted,
		Degraded:   stats.Degraded,
		DurationMS: stats.Duration.Milliseconds(),
	}

	out := output.NewCheckOutput(tone, report.Present(result.Findings, tone), analyzerOut, summary)
	cc.Logger.Debug("check rendered", "findings", len(result.Findings), "duration", stats.Duration.Round(time.Millisecond))
	return cc.Renderer.RenderCheck(out)
}
