package lint

import (
	"context"
	"strings"

	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/source"
)

// Rule kinds shipped with grumpy.
const (
	KindComplexity   = "complexity"
	KindFunctionSize = "function_size"
	KindPattern      = "pattern"
	KindScript       = "script"
)

// Rule is the interface every rule kind implements.
// Rules carry no mutable state; one instance is shared by all workers.
type Rule interface {
	// ID returns the unique identifier, e.g., "max-complexity"
	ID() string

	// Kind returns the rule kind, e.g., "complexity"
	Kind() string

	// Category returns the category, e.g., "complexity", "hygiene"
	Category() string

	// Description returns a human-readable description
	Description() string

	// DefaultSeverity returns the severity the rule was defined with
	DefaultSeverity() core.Severity

	// Check analyzes one unit. Returned findings need only RuleID, Path,
	// Span, Message and Params; the engine stamps severity, kind and source.
	Check(ctx context.Context, unit *source.Unit, settings Settings) ([]core.Finding, error)
}

// Settings are the effective per-rule values for one evaluation pass.
type Settings struct {
	Severity core.Severity
	Options  map[string]any
}

// Spec is the merged definition of one rule. A Factory turns a Spec into a Rule.
type Spec struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Category    string         `json:"category"`
	Description string         `json:"description,omitempty"`
	Severity    core.Severity  `json:"severity"`
	Enabled     bool           `json:"enabled"`
	Message     string         `json:"message,omitempty"`
	Script      string         `json:"script,omitempty"`
	Options     map[string]any `json:"options,omitempty"`

	// Origin names where the definition last came from: "builtin", a rule
	// file path, or "config".
	Origin string `json:"-"`
}

// Clone returns a deep enough copy of s for merging: the options map is copied.
func (s Spec) Clone() Spec {
	out := s
	out.Options = make(map[string]any, len(s.Options))
	for k, v := range s.Options {
		out.Options[k] = v
	}
	return out
}

// Factory builds a Rule from its merged Spec.
type Factory func(spec Spec) (Rule, error)

// Kinds maps a rule kind name to its Factory.
type Kinds map[string]Factory

// Base implements the metadata half of Rule from a Spec.
// Rule kinds embed it and add Check.
type Base struct {
	spec Spec
}

// NewBase returns a Base for spec.
func NewBase(spec Spec) Base {
	return Base{spec: spec}
}

func (b Base) ID() string                     { return b.spec.ID }
func (b Base) Kind() string                   { return b.spec.Kind }
func (b Base) Category() string               { return b.spec.Category }
func (b Base) Description() string            { return b.spec.Description }
func (b Base) DefaultSeverity() core.Severity { return b.spec.Severity }

// Message returns the rule's configured message template, or fallback.
func (b Base) Message(fallback string) string {
	if b.spec.Message != "" {
		return b.spec.Message
	}
	return fallback
}

// Expand substitutes {key} placeholders in template with params.
func Expand(template string, params map[string]string) string {
	if len(params) == 0 || !strings.Contains(template, "{") {
		return template
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
