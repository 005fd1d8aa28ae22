package commands

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/grumpy/internal/changes"
	"github.com/leapstack-labs/grumpy/internal/cli/config"
	"github.com/leapstack-labs/grumpy/internal/cli/output"
	"github.com/leapstack-labs/grumpy/internal/engine"
	"github.com/leapstack-labs/grumpy/pkg/lint"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-analyze files as they change",
		Long: `Analyze the project, then keep watching it and re-evaluate changed files.

Bursts of file events are coalesced before a pass starts. A change that
arrives while a pass is running cancels it; the affected files are
evaluated together with the new change. Editing a rule file reloads the
rules and re-evaluates the whole project.

Stop with Ctrl-C.`,
		Example: `  # Watch with the configured settings
  grumpy watch

  # Be rude about it
  grumpy watch -g rude`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Debounce, "debounce", changes.DefaultDebounce, "Coalescing window for file events")

	return cmd
}

// watchState is the mutable state of a watch session. The rule set and
// cache are swapped wholesale, never modified in place.
type watchState struct {
	cc       *CommandContext
	eng      *engine.Engine
	filter   *changes.Filter
	recorder passRecorder

	// ruleFiles are the root-relative rule files that trigger a reload.
	ruleFiles map[string]bool

	rules atomic.Pointer[lint.RuleSet]

	mu    sync.Mutex
	cache *engine.Cache
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
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
	list, _, err := buildAnalyzers(ctx, cfg, logger)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	ws := &watchState{
		cc:        cc,
		eng:       newEngine(cfg, list, logger),
		filter:    filter,
		recorder:  passRecorder{store: store, logger: logger},
		ruleFiles: watchedRuleFiles(cfg),
		cache:     loadCache(store, rs.Fingerprint(), logger),
	}
	ws.rules.Store(rs)

	// initial full pass
	result, err := ws.fullPass(ctx)
	if err != nil {
		if ctxErr(err) {
			return nil
		}
		return internal(err)
	}
	ws.publish(result)

	watchFilter, err := ws.watchFilter()
	if err != nil {
		return internal(err)
	}

	session := changes.NewSession(ws.pass, logger)
	watcher := changes.NewWatcher(changes.WatcherConfig{
		Root:     cfg.ProjectRoot,
		Filter:   watchFilter,
		Debounce: opts.Debounce,
		Logger:   logger,
	}, func(cs changes.ChangeSet) {
		session.Submit(cs)
	})

	if cc.Renderer.EffectiveMode() != output.ModeJSON {
		cc.Renderer.Muted("Watching " + cfg.ProjectRoot + " for changes. Press Ctrl-C to stop.")
	}

	// A watcher failure stops the session without cancelling the pass in
	// flight; only ctx interrupts passes.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer session.Stop()
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		return session.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		var watchErr *changes.WatchError
		if errors.As(err, &watchErr) {
			logger.Error("watch session ended", "error", watchErr)
		}
		return internal(err)
	}
	return nil
}

// watchedRuleFiles returns the rule files inside the project root, as
// root-relative slash paths.
func watchedRuleFiles(cfg *config.Config) map[string]bool {
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil
	}
	files := make(map[string]bool)
	for _, p := range cfg.RuleFiles() {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		files[filepath.ToSlash(rel)] = true
	}
	return files
}

// watchFilter extends the configured filter with the rule files so that
// editing them reaches the session.
func (ws *watchState) watchFilter() (*changes.Filter, error) {
	cfg := ws.cc.Cfg
	watch := append([]string(nil), cfg.WatchFiles...)
	for p := range ws.ruleFiles {
		if strings.ContainsAny(p, "*?[") {
			continue
		}
		watch = append(watch, p)
	}
	return changes.NewFilter(watch, cfg.IgnorePatterns)
}

func (ws *watchState) currentCache() *engine.Cache {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.cache
}

func (ws *watchState) fullPass(ctx context.Context) (*engine.Result, error) {
	rs := ws.rules.Load()
	id := ws.recorder.start("watch", rs.Fingerprint())
	result, err := ws.eng.EvaluateAll(ctx, ws.filter, rs, ws.currentCache())
	ws.recorder.finish(id, result, err)
	return result, err
}

// pass evaluates one change set. Rule file changes reload the rules and
// re-evaluate everything; a failed reload keeps the previous rules.
func (ws *watchState) pass(ctx context.Context, cs changes.ChangeSet) (func(), error) {
	source, rulesChanged := ws.splitRuleFiles(cs)

	if rulesChanged {
		if ws.reload() {
			result, err := ws.fullPass(ctx)
			if err != nil {
				return nil, err
			}
			return func() { ws.publish(result) }, nil
		}
	}
	if source.Empty() {
		return nil, nil
	}

	rs := ws.rules.Load()
	prev := ws.currentCache()
	if !prev.Covers(rs.Fingerprint()) {
		// a full pass under the current rules never completed
		result, err := ws.fullPass(ctx)
		if err != nil {
			return nil, err
		}
		return func() { ws.publish(result) }, nil
	}
	id := ws.recorder.start("watch", rs.Fingerprint())
	result, err := ws.eng.EvaluateChanges(ctx, source, rs, prev)
	ws.recorder.finish(id, result, err)
	if err != nil {
		return nil, err
	}
	return func() { ws.publish(result) }, nil
}

func (ws *watchState) splitRuleFiles(cs changes.ChangeSet) (changes.ChangeSet, bool) {
	if len(ws.ruleFiles) == 0 {
		return cs, false
	}
	out := changes.ChangeSet{Seq: cs.Seq}
	changed := false
	for _, p := range cs.Dirty {
		if ws.ruleFiles[p] {
			changed = true
			continue
		}
		out.Dirty = append(out.Dirty, p)
	}
	for _, p := range cs.Deleted {
		if ws.ruleFiles[p] {
			changed = true
			continue
		}
		out.Deleted = append(out.Deleted, p)
	}
	return out, changed
}

func (ws *watchState) reload() bool {
	logger := ws.cc.Logger
	rs, err := loadRuleSet(ws.cc.Cfg, logger)
	if err != nil {
		logger.Error("keeping previous rules", "error", err)
		ws.cc.Renderer.Warning("Rule reload failed: " + err.Error())
		return false
	}
	prev := ws.rules.Swap(rs)
	logger.Info("rules reloaded", slog.Group("fingerprint", "old", prev.Fingerprint(), "new", rs.Fingerprint()))
	return true
}

// publish makes result the current state and renders it.
func (ws *watchState) publish(result *engine.Result) {
	ws.mu.Lock()
	ws.cache = result.Cache
	ws.mu.Unlock()

	r := ws.cc.Renderer
	if r.EffectiveMode() != output.ModeJSON {
		r.Println("")
		r.Muted(time.Now().Format("15:04:05"))
	}
	if err := renderResult(ws.cc, result); err != nil {
		ws.cc.Logger.Error("failed to render results", "error", err)
	}
}
