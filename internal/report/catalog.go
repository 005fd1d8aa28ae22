package report

import (
	"github.com/leapstack-labs/grumpy/pkg/core"
)

// Phrase holds one message template per tone. Templates use {param}
// placeholders filled from the finding's params plus path, rule, line and
// message. An empty template falls back to Mild, then to the finding's own
// message.
type Phrase struct {
	Mild      string
	Sarcastic string
	Rude      string
}

func (p Phrase) template(tone core.Tone) string {
	switch tone {
	case core.ToneSarcastic:
		if p.Sarcastic != "" {
			return p.Sarcastic
		}
	case core.ToneRude:
		if p.Rude != "" {
			return p.Rude
		}
	}
	return p.Mild
}

type catalogKey struct {
	rule     string
	severity string
}

// Catalog maps (rule id, severity) to phrasing variants. A phrase
// registered without a severity applies to every severity of the rule.
type Catalog struct {
	phrases map[catalogKey]Phrase
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{phrases: make(map[catalogKey]Phrase)}
}

// Set registers the phrase for every severity of ruleID.
func (c *Catalog) Set(ruleID string, p Phrase) *Catalog {
	c.phrases[catalogKey{rule: ruleID}] = p
	return c
}

// SetFor registers the phrase for ruleID at one severity. It takes
// precedence over Set.
func (c *Catalog) SetFor(ruleID string, sev core.Severity, p Phrase) *Catalog {
	c.phrases[catalogKey{rule: ruleID, severity: sev.String()}] = p
	return c
}

// Lookup returns the phrase for a rule at a severity.
func (c *Catalog) Lookup(ruleID string, sev core.Severity) (Phrase, bool) {
	if c == nil {
		return Phrase{}, false
	}
	if p, ok := c.phrases[catalogKey{rule: ruleID, severity: sev.String()}]; ok {
		return p, true
	}
	p, ok := c.phrases[catalogKey{rule: ruleID}]
	return p, ok
}

// Rule IDs phrased by the default catalog. They mirror the built-in rules,
// the engine's degraded findings and the git annotations.
const (
	ruleMaxComplexity   = "max-complexity"
	ruleMaxFunctionSize = "max-function-size"
	ruleNoTodo          = "no-todo"
	ruleUnparseable     = "unparseable"
	ruleTimeout         = "timeout"
	ruleGitStale        = "git-stale"
	ruleGitAuthor       = "git-author"
	ruleGoVet           = "go-vet"
)

// DefaultCatalog returns the built-in phrasings.
func DefaultCatalog() *Catalog {
	return NewCatalog().
		Set(ruleMaxComplexity, Phrase{
			Mild:      "Function '{function}': Cyclomatic complexity too high ({value} > {limit}). Consider simplifying it.",
			Sarcastic: "Function '{function}': Wow, cyclomatic complexity ({value} > {limit})! Are you trying to write a novel?",
			Rude:      "Function '{function}': Cyclomatic complexity ({value} > {limit})? What is this monstrosity?",
		}).
		SetFor(ruleMaxComplexity, core.SeverityError, Phrase{
			Mild:      "Function '{function}': Cyclomatic complexity far too high ({value} > {limit}). This must be simplified.",
			Sarcastic: "Function '{function}': Cyclomatic complexity {value} (> {limit}). Bold of you to call this a function.",
			Rude:      "Function '{function}': Cyclomatic complexity ({value} > {limit})? What is this monstrosity? Fix it before it spreads.",
		}).
		Set(ruleMaxFunctionSize, Phrase{
			Mild:      "Function '{function}': Too many lines ({value} > {limit}). Consider refactoring.",
			Sarcastic: "Function '{function}': Wow, {value} lines ({value} > {limit})! Are you writing a novel?",
			Rude:      "Function '{function}': {value} lines ({value} > {limit})? This is absurd!",
		}).
		Set(ruleNoTodo, Phrase{
			Mild:      "TODO comment found. Consider tracking it in an issue.",
			Sarcastic: "Another TODO. Surely someone will get to it eventually.",
			Rude:      "A TODO? Just do it already.",
		}).
		Set(ruleUnparseable, Phrase{
			Mild:      "Could not analyze this file: {message}",
			Sarcastic: "Could not even parse this file ({message}). Impressive.",
			Rude:      "This does not even parse ({message}). Did you try compiling it?",
		}).
		Set(ruleTimeout, Phrase{
			Mild:      "Analysis gave up on this file: {message}",
			Sarcastic: "Analysis gave up on this file ({message}). Even the linter needed a break.",
			Rude:      "Analysis gave up on this file ({message}). Nobody can read this, not even a machine.",
		}).
		Set(ruleGitStale, Phrase{
			Mild:      "Git: Hey there! Just a heads-up: file hasn't been updated in a while.",
			Sarcastic: "Git: file looks stale. Consider revisiting it.",
			Rude:      "Git: file is gathering dust. Are you asleep at the keyboard?",
		}).
		Set(ruleGitAuthor, Phrase{
			Mild:      "Git: file mostly edited by our star `{author}`!",
			Sarcastic: "Git: file mostly authored by `{author}`. Check if they're still around.",
			Rude:      "Git: Looks like here is {author}'s personal playground.",
		}).
		Set(ruleGoVet, Phrase{
			Mild:      "go vet: {message}",
			Sarcastic: "go vet noticed something (as usual): {message}",
			Rude:      "Of course go vet found something: {message}",
		})
}
