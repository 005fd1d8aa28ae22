package output

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/grumpy/internal/report"
	"github.com/leapstack-labs/grumpy/pkg/core"
)

// FindingOutput is the JSON form of one rendered finding.
type FindingOutput struct {
	RuleID    string `json:"rule_id"`
	Kind      string `json:"kind"`
	Source    string `json:"source"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"end_line"`
	EndColumn int    `json:"end_column"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Text      string `json:"text"`
}

// AnalyzerOutput reports one external analyzer run.
type AnalyzerOutput struct {
	Name     string `json:"name"`
	Findings int    `json:"findings"`
	Error    string `json:"error,omitempty"`
	Text     string `json:"text"`
}

// CheckSummary counts the outcome of a check.
type CheckSummary struct {
	Files      int   `json:"files"`
	Evaluated  int   `json:"evaluated"`
	Cached     int   `json:"cached"`
	Deleted    int   `json:"deleted"`
	Degraded   int   `json:"degraded"`
	Findings   int   `json:"findings"`
	Errors     int   `json:"errors"`
	Warnings   int   `json:"warnings"`
	Info       int   `json:"info"`
	DurationMS int64 `json:"duration_ms"`
}

// CheckOutput is everything a check prints.
type CheckOutput struct {
	Tone      string           `json:"tone"`
	Findings  []FindingOutput  `json:"findings"`
	Analyzers []AnalyzerOutput `json:"analyzers,omitempty"`
	Summary   CheckSummary     `json:"summary"`
}

// NewCheckOutput converts rendered findings and fills the severity counts
// of summary.
func NewCheckOutput(tone core.Tone, rendered []report.Rendered, analyzers []AnalyzerOutput, summary CheckSummary) CheckOutput {
	out := CheckOutput{
		Tone:      string(tone),
		Findings:  make([]FindingOutput, 0, len(rendered)),
		Analyzers: analyzers,
		Summary:   summary,
	}
	out.Summary.Findings = len(rendered)
	out.Summary.Errors, out.Summary.Warnings, out.Summary.Info = 0, 0, 0
	for _, r := range rendered {
		f := r.Finding
		switch f.Severity {
		case core.SeverityError:
			out.Summary.Errors++
		case core.SeverityWarning:
			out.Summary.Warnings++
		default:
			out.Summary.Info++
		}
		out.Findings = append(out.Findings, FindingOutput{
			RuleID:    f.RuleID,
			Kind:      string(f.Kind),
			Source:    f.Source,
			Path:      f.Path,
			Line:      f.Span.StartLine,
			Column:    f.Span.StartColumn,
			EndLine:   f.Span.EndLine,
			EndColumn: f.Span.EndColumn,
			Severity:  f.Severity.String(),
			Message:   f.Message,
			Text:      r.Text,
		})
	}
	return out
}

// RenderCheck writes a check result in the renderer's mode.
func (r *Renderer) RenderCheck(out CheckOutput) error {
	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(out)
	case ModeMarkdown:
		r.renderCheckMarkdown(out)
	default:
		r.renderCheckText(out)
	}
	return nil
}

func (r *Renderer) renderCheckText(out CheckOutput) {
	styles := r.Styles()

	current := ""
	for _, f := range out.Findings {
		if f.Path != current {
			if current != "" {
				r.Println("")
			}
			current = f.Path
			r.Println(styles.Path.Render(f.Path))
		}
		sev, _ := core.ParseSeverity(f.Severity)
		loc, label := location(f), report.Label(sev)
		r.Printf("  %s%s  %s%s  %s  %s\n",
			styles.Muted.Render(loc), pad(loc, 7),
			styles.Severity(sev).Render(label), pad(label, 7),
			styles.Bold.Render(f.RuleID),
			f.Text,
		)
	}
	if len(out.Findings) > 0 {
		r.Println("")
	}

	for _, a := range out.Analyzers {
		if a.Error != "" {
			r.Println(styles.Warning.Render(a.Text))
			continue
		}
		r.Muted(a.Text)
	}

	if len(out.Findings) == 0 {
		r.Success("No issues found")
	}
	r.Println(summaryLine(out.Summary))
}

func (r *Renderer) renderCheckMarkdown(out CheckOutput) {
	r.Header(1, "grumpy report")

	current := ""
	for _, f := range out.Findings {
		if f.Path != current {
			if current != "" {
				r.Println("")
			}
			current = f.Path
			r.Header(2, "`"+f.Path+"`")
		}
		r.Printf("- `%s` **%s** `%s` %s\n", location(f), f.Severity, f.RuleID, f.Text)
	}
	if len(out.Findings) > 0 {
		r.Println("")
	}

	if len(out.Analyzers) > 0 {
		r.Header(2, "Analyzers")
		for _, a := range out.Analyzers {
			r.Println("- " + a.Text)
		}
		r.Println("")
	}

	r.Println(summaryLine(out.Summary))
}

// pad returns the spaces that widen s to width.
func pad(s string, width int) string {
	if n := width - len(s); n > 0 {
		return strings.Repeat(" ", n)
	}
	return ""
}

func location(f FindingOutput) string {
	if f.Line == 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%d", f.Line, f.Column)
}

func summaryLine(s CheckSummary) string {
	parts := []string{fmt.Sprintf("%d %s", s.Findings, plural(s.Findings, "finding"))}
	var counts []string
	if s.Errors > 0 {
		counts = append(counts, fmt.Sprintf("%d %s", s.Errors, plural(s.Errors, "error")))
	}
	if s.Warnings > 0 {
		counts = append(counts, fmt.Sprintf("%d %s", s.Warnings, plural(s.Warnings, "warning")))
	}
	if s.Info > 0 {
		counts = append(counts, fmt.Sprintf("%d info", s.Info))
	}
	if len(counts) > 0 {
		parts[0] += " (" + strings.Join(counts, ", ") + ")"
	}
	parts = append(parts, fmt.Sprintf("in %d %s", s.Files, plural(s.Files, "file")))
	line := "Summary: " + strings.Join(parts, " ")
	if s.Cached > 0 {
		line += fmt.Sprintf(", %d cached", s.Cached)
	}
	return line
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
