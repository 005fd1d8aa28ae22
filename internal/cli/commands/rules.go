package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/grumpy/internal/cli/output"
	"github.com/leapstack-labs/grumpy/pkg/lint"
)

// RulesOptions holds options for the rules command.
type RulesOptions struct {
	Category string // Filter by category
	Enabled  bool   // Only enabled rules
	Format   string // Output format
}

// RuleOutput is the JSON form of one effective rule.
type RuleOutput struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Category    string         `json:"category"`
	Severity    string         `json:"severity"`
	Enabled     bool           `json:"enabled"`
	Description string         `json:"description,omitempty"`
	Origin      string         `json:"origin"`
	Options     map[string]any `json:"options,omitempty"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	opts := &RulesOptions{}
	cmd := &cobra.Command{
		Use:   "rules [rule-id]",
		Short: "List the effective rules",
		Long: `List every rule after merging built-ins, rule files and configuration.

Each rule shows its kind, category, effective severity ("off" when
disabled) and where its definition came from.`,
		Example: `  # List all rules
  grumpy rules

  # Show one rule with its options
  grumpy rules max-complexity

  # Only enabled rules of a category
  grumpy rules --enabled --category complexity

  # Output as JSON
  grumpy rules --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return showRule(cmd, args[0], opts)
			}
			return listRules(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "Filter by category")
	cmd.Flags().BoolVar(&opts.Enabled, "enabled", false, "Only list enabled rules")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json, markdown")

	return cmd
}

func rulesRenderer(cmd *cobra.Command, cc *CommandContext, format string) *output.Renderer {
	if format != "" {
		return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(format))
	}
	return cc.Renderer
}

func listRules(cmd *cobra.Command, opts *RulesOptions) error {
	cc := NewCommandContext(cmd)
	r := rulesRenderer(cmd, cc, opts.Format)

	rs, err := loadRuleSet(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	var rules []RuleOutput
	for _, e := range rs.Entries() {
		if opts.Enabled && !e.Spec.Enabled {
			continue
		}
		if opts.Category != "" && !strings.EqualFold(e.Spec.Category, opts.Category) {
			continue
		}
		rules = append(rules, toRuleOutput(e))
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if rules == nil {
			rules = []RuleOutput{}
		}
		return r.JSON(rules)
	case output.ModeMarkdown:
		r.Header(1, fmt.Sprintf("Rules (%d)", len(rules)))
		r.Println(rulesTable(rules).RenderMarkdown())
		return nil
	default:
		if len(rules) == 0 {
			r.Muted("No rules match")
			return nil
		}
		t := rulesTable(rules)
		t.SetOutputMirror(r.Writer())
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	}
}

func rulesTable(rules []RuleOutput) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Kind", "Category", "Severity", "Origin"})
	for _, rule := range rules {
		t.AppendRow(table.Row{rule.ID, rule.Kind, rule.Category, rule.Severity, rule.Origin})
	}
	return t
}

func showRule(cmd *cobra.Command, id string, opts *RulesOptions) error {
	cc := NewCommandContext(cmd)
	r := rulesRenderer(cmd, cc, opts.Format)

	rs, err := loadRuleSet(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	entry, ok := rs.Lookup(id)
	if !ok {
		return internal(fmt.Errorf("rule %q not found", id))
	}
	rule := toRuleOutput(entry)

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(rule)
	}

	styles := r.Styles()
	r.Header(1, rule.ID)
	if rule.Description != "" {
		r.Println(rule.Description)
		r.Println("")
	}
	r.Printf("%s %s\n", styles.Bold.Render("Kind:"), rule.Kind)
	r.Printf("%s %s\n", styles.Bold.Render("Category:"), rule.Category)
	sevStyle := styles.Muted
	if entry.Spec.Enabled {
		sevStyle = styles.Severity(entry.Spec.Severity)
	}
	r.Printf("%s %s\n", styles.Bold.Render("Severity:"), sevStyle.Render(rule.Severity))
	r.Printf("%s %s\n", styles.Bold.Render("Origin:"), styles.Path.Render(rule.Origin))

	if len(rule.Options) > 0 {
		r.Println("")
		r.Println(styles.Bold.Render("Options:"))
		keys := make([]string, 0, len(rule.Options))
		for k := range rule.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			r.Printf("  %s: %v\n", k, rule.Options[k])
		}
	}
	return nil
}

func toRuleOutput(e lint.Entry) RuleOutput {
	return RuleOutput{
		ID:          e.Spec.ID,
		Kind:        e.Spec.Kind,
		Category:    e.Spec.Category,
		Severity:    e.SeverityLabel(),
		Enabled:     e.Spec.Enabled,
		Description: e.Spec.Description,
		Origin:      e.Spec.Origin,
		Options:     e.Spec.Options,
	}
}
