package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/grumpy/internal/analyzers"
	"github.com/leapstack-labs/grumpy/internal/changes"
	"github.com/leapstack-labs/grumpy/internal/cli/config"
	"github.com/leapstack-labs/grumpy/internal/cli/output"
	"github.com/leapstack-labs/grumpy/internal/engine"
	"github.com/leapstack-labs/grumpy/internal/state"
	"github.com/leapstack-labs/grumpy/internal/vcs"
	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/lint"
	"github.com/leapstack-labs/grumpy/pkg/lint/rules"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds the context from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// getConfig returns the loaded configuration, or a validated default one
// when commands run without the root command.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		GrumpinessLevel: config.DefaultGrumpiness,
		OutputFormat:    config.DefaultOutput,
		WatchFiles:      []string{"*.go"},
		IgnorePatterns:  []string{"vendor/", ".git/", "testdata/"},
		StaleDays:       config.DefaultStaleDays,
		FileTimeout:     config.DefaultFileTimeout,
		MinSeverity:     config.DefaultMinSeverity,
		NoState:         true,
		ProjectRoot:     ".",
	}
}

// buildOverrides turns the configuration's rule settings into the last
// merge layer. Top-level thresholds apply first so a rules entry can
// refine them.
func buildOverrides(cfg *config.Config) *lint.Overrides {
	o := lint.NewOverrides()
	if cfg.MaxComplexity != nil {
		o.SetOptions(rules.MaxComplexityID, map[string]any{rules.OptMaxComplexity: *cfg.MaxComplexity})
	}
	if cfg.MaxFunctionSize != nil {
		o.SetOptions(rules.MaxFunctionSizeID, map[string]any{rules.OptMaxFunctionSize: *cfg.MaxFunctionSize})
	}

	ids := make([]string, 0, len(cfg.Rules))
	for id := range cfg.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rc := cfg.Rules[id]
		if rc.Enabled != nil {
			if *rc.Enabled {
				o.Enable(id)
			} else {
				o.Disable(id)
			}
		}
		switch {
		case rc.Severity == "":
		case strings.EqualFold(rc.Severity, core.SeverityOff):
			o.Disable(id)
		default:
			if sev, ok := core.ParseSeverity(rc.Severity); ok {
				o.SetSeverity(id, sev)
			}
		}
		if len(rc.Options) > 0 {
			o.SetOptions(id, rc.Options)
		}
	}
	return o
}

// loadRuleSet merges built-ins, rule files and configuration overrides.
// Merge warnings are logged.
func loadRuleSet(cfg *config.Config, logger *slog.Logger) (*lint.RuleSet, error) {
	res, err := lint.Load(rules.Builtins(), cfg.RuleFiles(), buildOverrides(cfg), rules.Kinds())
	if err != nil {
		return nil, internal(err)
	}
	for _, w := range res.Warnings {
		logger.Warn("rule configuration", "warning", w.Error())
	}
	logger.Debug("rule set loaded",
		"rules", res.RuleSet.Len(),
		"enabled", len(res.RuleSet.Enabled()),
		"fingerprint", res.RuleSet.Fingerprint(),
	)
	return res.RuleSet, nil
}

// newFilter builds the watch/ignore filter.
func newFilter(cfg *config.Config) (*changes.Filter, error) {
	filter, err := changes.NewFilter(cfg.WatchFiles, cfg.IgnorePatterns)
	if err != nil {
		return nil, internal(err)
	}
	return filter, nil
}

// openGit opens the repository containing the project root.
func openGit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*vcs.Git, error) {
	git, err := vcs.Open(ctx, vcs.Config{Dir: cfg.ProjectRoot, Logger: logger})
	if err != nil {
		return nil, internal(&lint.ConfigError{Source: lint.OriginConfig, Msg: "git integration requires a git repository", Err: err})
	}
	return git, nil
}

// buildAnalyzers creates the configured external analyzers, plus the git
// annotator when git integration is on.
func buildAnalyzers(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]engine.Analyzer, *vcs.Git, error) {
	var list []engine.Analyzer
	for _, name := range cfg.External {
		a, err := analyzers.New(name, nil)
		if err != nil {
			return nil, nil, internal(&lint.ConfigError{Source: lint.OriginConfig, Msg: "invalid external analyzer", Err: err})
		}
		list = append(list, a)
	}

	if !cfg.GitIntegration {
		return list, nil, nil
	}
	git, err := openGit(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	list = append(list, analyzers.NewGitStale(git, cfg.StaleDays, logger))
	return list, git, nil
}

// newEngine creates the evaluation engine for the configuration.
func newEngine(cfg *config.Config, list []engine.Analyzer, logger *slog.Logger) *engine.Engine {
	minSeverity := cfg.Severity()
	return engine.New(engine.Config{
		Root:        cfg.ProjectRoot,
		Workers:     cfg.Workers,
		FileTimeout: cfg.FileTimeout,
		MinSeverity: &minSeverity,
		Analyzers:   list,
		Logger:      logger,
	})
}

// openStore opens and migrates the state database. It returns a nil store
// when state is disabled.
func openStore(cfg *config.Config, logger *slog.Logger) (state.Store, error) {
	if cfg.NoState || cfg.StatePath == "" {
		return nil, nil
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, internal(fmt.Errorf("failed to open state: %w", err))
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, internal(fmt.Errorf("failed to migrate state: %w", err))
	}
	return store, nil
}

// loadCache returns the stored cache for fingerprint. A store failure
// only costs a full evaluation.
func loadCache(store state.Store, fingerprint string, logger *slog.Logger) *engine.Cache {
	if store == nil {
		return nil
	}
	cache, err := store.LoadCache(fingerprint)
	if err != nil {
		logger.Warn("ignoring stored cache", "error", err)
		return nil
	}
	return cache
}

// passRecorder records pass history when a store is available.
type passRecorder struct {
	store  state.Store
	logger *slog.Logger
}

func (p passRecorder) start(mode, fingerprint string) string {
	if p.store == nil {
		return ""
	}
	pass, err := p.store.StartPass(mode, fingerprint)
	if err != nil {
		p.logger.Warn("failed to record pass", "error", err)
		return ""
	}
	return pass.ID
}

func (p passRecorder) finish(id string, result *engine.Result, err error) {
	if p.store == nil || id == "" {
		return
	}
	outcome := state.PassOutcome{Err: err}
	if result != nil {
		outcome.Files = result.Stats.Files
		outcome.Findings = len(result.Findings)
		outcome.Errors = result.Stats.Degraded
		if saveErr := p.store.SaveCache(result.Cache); saveErr != nil {
			p.logger.Warn("failed to save cache", "error", saveErr)
		}
	}
	if err != nil && ctxErr(err) {
		outcome.Status = state.PassStatusCancelled
	}
	if completeErr := p.store.CompletePass(id, outcome); completeErr != nil {
		p.logger.Warn("failed to complete pass", "error", completeErr)
	}
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
