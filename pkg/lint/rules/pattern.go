package rules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/lint"
	"github.com/leapstack-labs/grumpy/pkg/source"
)

// Pattern scopes.
const (
	ScopeLines    = "lines"
	ScopeComments = "comments"
)

// Pattern rule options.
const (
	OptPattern    = "pattern"
	OptWord       = "word"
	OptWords      = "words"
	OptScope      = "scope"
	OptIgnoreCase = "ignore_case"
)

// patternRule reports each match of a regular expression, either on every
// line or only inside comments of Go files.
type patternRule struct {
	lint.Base
	re    *regexp.Regexp
	scope string
}

// NewPattern builds a pattern rule. It requires either a "pattern" regular
// expression or literal words ("word" and/or a "words" list), matched
// case-insensitively as whole words.
func NewPattern(spec lint.Spec) (lint.Rule, error) {
	expr := lint.GetStringOption(spec.Options, OptPattern, "")
	words := wordList(spec.Options)

	switch {
	case expr == "" && len(words) == 0:
		if !spec.Enabled {
			// a disabled rule may leave its pattern to be configured later
			return &patternRule{Base: lint.NewBase(spec)}, nil
		}
		return nil, errors.New("pattern rule requires a pattern, word or words option")
	case expr == "":
		expr = `(?i)\b(?:` + strings.Join(words, "|") + `)\b`
	case lint.GetBoolOption(spec.Options, OptIgnoreCase, false):
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	scope := lint.GetStringOption(spec.Options, OptScope, ScopeLines)
	if scope != ScopeLines && scope != ScopeComments {
		return nil, fmt.Errorf("invalid scope %q (valid: %s, %s)", scope, ScopeLines, ScopeComments)
	}

	return &patternRule{Base: lint.NewBase(spec), re: re, scope: scope}, nil
}

// wordList returns the quoted literal words of the word and words options.
func wordList(opts map[string]any) []string {
	var words []string
	if w := lint.GetStringOption(opts, OptWord, ""); w != "" {
		words = append(words, regexp.QuoteMeta(w))
	}
	for _, w := range lint.GetStringSliceOption(opts, OptWords, nil) {
		if w != "" {
			words = append(words, regexp.QuoteMeta(w))
		}
	}
	return words
}

func (r *patternRule) Check(ctx context.Context, unit *source.Unit, _ lint.Settings) ([]core.Finding, error) {
	if r.re == nil {
		return nil, nil
	}
	if r.scope == ScopeComments && unit.IsGo() {
		return r.checkComments(ctx, unit)
	}
	return r.checkLines(ctx, unit, unit.Text(), 1, 1)
}

func (r *patternRule) checkComments(ctx context.Context, unit *source.Unit) ([]core.Finding, error) {
	var findings []core.Finding
	for _, group := range unit.File.Comments {
		for _, c := range group.List {
			line, col := unit.Position(c.Slash)
			found, err := r.checkLines(ctx, unit, c.Text, line, col)
			if err != nil {
				return nil, err
			}
			findings = append(findings, found...)
		}
	}
	return findings, nil
}

// checkLines matches text whose first character sits at (line, col).
func (r *patternRule) checkLines(ctx context.Context, unit *source.Unit, text string, line, col int) ([]core.Finding, error) {
	var findings []core.Finding
	for i, l := range strings.Split(text, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offset := 1
		if i == 0 {
			offset = col
		}
		for _, loc := range r.re.FindAllStringIndex(l, -1) {
			match := l[loc[0]:loc[1]]
			params := map[string]string{"match": match}
			findings = append(findings, core.Finding{
				RuleID: r.ID(),
				Path:   unit.Path,
				Span: core.Span{
					StartLine:   line + i,
					StartColumn: offset + loc[0],
					EndLine:     line + i,
					EndColumn:   offset + loc[1],
				},
				Message: lint.Expand(r.Message("forbidden pattern {match}"), params),
				Params:  params,
			})
		}
	}
	return findings, nil
}
