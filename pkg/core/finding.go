package core

import (
	"fmt"
	"sort"
)

// FindingKind distinguishes rule violations from degraded outcomes.
type FindingKind string

// Finding kinds.
const (
	KindViolation   FindingKind = "violation"
	KindUnparseable FindingKind = "unparseable"
	KindRuleError   FindingKind = "rule_error"
	KindTimeout     FindingKind = "timeout"
	KindExternal    FindingKind = "external"
)

// SourceEngine tags findings produced by the rule engine itself.
// External analyzers use their own source name.
const SourceEngine = "grumpy"

// Span is a 1-based line/column range inside a file.
// A zero Span means the finding applies to the whole file.
type Span struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// String renders the start of the span as "line:col".
func (s Span) String() string {
	if s.StartLine == 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%d", s.StartLine, s.StartColumn)
}

// Finding is one reported violation. Findings are immutable values;
// callers copy rather than edit them once emitted.
type Finding struct {
	RuleID   string      `json:"rule_id"`
	Kind     FindingKind `json:"kind"`
	Source   string      `json:"source"`
	Path     string      `json:"path"`
	Span     Span        `json:"span"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`

	// Params carries the values a tone catalog substitutes into its phrasing,
	// e.g. "function", "value" and "limit" for threshold rules.
	Params map[string]string `json:"params,omitempty"`
}

// Param returns a template parameter or the empty string.
func (f Finding) Param(key string) string {
	if f.Params == nil {
		return ""
	}
	return f.Params[key]
}

// Less orders findings by (path, line, column, rule id), then by source and
// message so that ties between external diagnostics stay deterministic.
func Less(a, b Finding) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.Span.StartLine != b.Span.StartLine {
		return a.Span.StartLine < b.Span.StartLine
	}
	if a.Span.StartColumn != b.Span.StartColumn {
		return a.Span.StartColumn < b.Span.StartColumn
	}
	if a.RuleID != b.RuleID {
		return a.RuleID < b.RuleID
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.Message < b.Message
}

// SortFindings sorts findings in place using Less.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return Less(findings[i], findings[j])
	})
}

// FilterBySeverity returns the findings at or above threshold.
func FilterBySeverity(findings []Finding, threshold Severity) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Severity.AtLeast(threshold) {
			out = append(out, f)
		}
	}
	return out
}

// HasErrors reports whether any finding has error severity.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
