package rules

import (
	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/lint"
	"github.com/leapstack-labs/grumpy/pkg/lint/script"
)

// Built-in rule IDs.
const (
	MaxComplexityID   = "max-complexity"
	MaxFunctionSizeID = "max-function-size"
	NoTodoID          = "no-todo"
	ForbidWordID      = "forbid-word"
)

// Kinds returns every rule kind grumpy can build.
func Kinds() lint.Kinds {
	return lint.Kinds{
		lint.KindComplexity:   NewComplexity,
		lint.KindFunctionSize: NewFunctionSize,
		lint.KindPattern:      NewPattern,
		lint.KindScript:       script.New,
	}
}

// Builtins returns the default rule definitions, the first merge layer.
func Builtins() []lint.Spec {
	return []lint.Spec{
		{
			ID:          MaxComplexityID,
			Kind:        lint.KindComplexity,
			Category:    "complexity",
			Description: "Functions must stay below a cyclomatic complexity limit",
			Severity:    core.SeverityWarning,
			Enabled:     true,
			Options:     map[string]any{OptMaxComplexity: DefaultMaxComplexity},
		},
		{
			ID:          MaxFunctionSizeID,
			Kind:        lint.KindFunctionSize,
			Category:    "size",
			Description: "Functions must stay below a line count limit",
			Severity:    core.SeverityWarning,
			Enabled:     true,
			Options:     map[string]any{OptMaxFunctionSize: DefaultMaxFunctionSize},
		},
		{
			ID:          NoTodoID,
			Kind:        lint.KindPattern,
			Category:    "hygiene",
			Description: "Comments must not contain TODO markers",
			Severity:    core.SeverityWarning,
			Enabled:     false,
			Message:     "TODO comment found",
			Options:     map[string]any{OptPattern: `(?i)\btodo\b`, OptScope: ScopeComments},
		},
		{
			ID:          ForbidWordID,
			Kind:        lint.KindPattern,
			Category:    "hygiene",
			Description: "Source must not use the configured word",
			Severity:    core.SeverityWarning,
			Enabled:     false,
			Message:     "use of forbidden word: {match}",
			Options:     map[string]any{},
		},
	}
}
