package report

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/grumpy/pkg/core"
)

func sampleFindings() []core.Finding {
	return []core.Finding{
		{
			RuleID: "max-complexity", Kind: core.KindViolation, Path: "a.go",
			Span: core.Span{StartLine: 3, StartColumn: 1}, Severity: core.SeverityWarning,
			Message: "function tangled has cyclomatic complexity 7 (max 5)",
			Params:  map[string]string{"function": "tangled", "value": "7", "limit": "5"},
		},
		{
			RuleID: "max-complexity", Kind: core.KindViolation, Path: "b.go",
			Span: core.Span{StartLine: 10, StartColumn: 1}, Severity: core.SeverityError,
			Message: "function big has cyclomatic complexity 40 (max 32)",
			Params:  map[string]string{"function": "big", "value": "40", "limit": "32"},
		},
		{
			RuleID: "max-function-size", Kind: core.KindViolation, Path: "b.go",
			Span: core.Span{StartLine: 10, StartColumn: 1}, Severity: core.SeverityWarning,
			Message: "function big is 60 lines long (max 32)",
			Params:  map[string]string{"function": "big", "value": "60", "limit": "32"},
		},
		{
			RuleID: "git-stale", Kind: core.KindExternal, Source: "git", Path: "c.go",
			Severity: core.SeverityInfo, Message: "file has not been committed to in 30 days",
			Params: map[string]string{"days": "30", "limit": "7"},
		},
		{
			RuleID: "git-author", Kind: core.KindExternal, Source: "git", Path: "c.go",
			Severity: core.SeverityInfo, Message: "file mostly edited by Ada",
			Params: map[string]string{"author": "Ada"},
		},
		{
			RuleID: "max-complexity", Kind: core.KindRuleError, Path: "d.go",
			Severity: core.SeverityError, Message: "rule max-complexity failed on d.go: panic: boom",
		},
		{
			RuleID: "no-fmt", Kind: core.KindViolation, Path: "d.go",
			Span: core.Span{StartLine: 4, StartColumn: 2}, Severity: core.SeverityWarning,
			Message: "avoid fmt.Println",
		},
		{
			// a script rule reusing a catalog id without the params its phrase needs
			RuleID: "max-function-size", Kind: core.KindViolation, Path: "e.go",
			Span: core.Span{StartLine: 1, StartColumn: 1}, Severity: core.SeverityWarning,
			Message: "size issue",
		},
	}
}

func renderText(rendered []Rendered) []byte {
	var buf bytes.Buffer
	for _, r := range rendered {
		fmt.Fprintf(&buf, "%s %s:%s [%s] %s\n", r.Label, r.Finding.Path, r.Finding.Span, r.Finding.RuleID, r.Text)
	}
	return buf.Bytes()
}

func TestPresent_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tone := range core.Tones() {
		t.Run(string(tone), func(t *testing.T) {
			g.Assert(t, "present_"+string(tone), renderText(Present(sampleFindings(), tone)))
		})
	}
}

func TestPresent_PreservesFindings(t *testing.T) {
	findings := sampleFindings()

	for _, tone := range core.Tones() {
		rendered := Present(findings, tone)
		require.Len(t, rendered, len(findings))
		for i, r := range rendered {
			assert.Equal(t, findings[i], r.Finding)
		}
	}
	assert.Equal(t, sampleFindings(), findings, "input must not be modified")
}

func TestPresent_Empty(t *testing.T) {
	assert.Empty(t, Present(nil, core.ToneRude))
}

func TestPresent_UnknownRuleUsesNeutralMessage(t *testing.T) {
	f := core.Finding{RuleID: "custom", Severity: core.SeverityInfo, Message: "plain"}
	for _, tone := range core.Tones() {
		assert.Equal(t, "plain", Present([]core.Finding{f}, tone)[0].Text)
	}
}

func TestPresent_LiteralBracesInMessage(t *testing.T) {
	f := core.Finding{RuleID: "go-vet", Severity: core.SeverityWarning, Message: "format {message} in {path} is odd"}
	assert.Equal(t, "go vet: format {message} in {path} is odd", Present([]core.Finding{f}, core.ToneMild)[0].Text)

	f = core.Finding{
		RuleID: "max-complexity", Severity: core.SeverityWarning, Message: "m",
		Params: map[string]string{"function": "{limit}", "value": "7", "limit": "5"},
	}
	assert.Equal(t,
		"Function '{limit}': Cyclomatic complexity too high (7 > 5). Consider simplifying it.",
		Present([]core.Finding{f}, core.ToneMild)[0].Text)
}

func TestHasParams(t *testing.T) {
	params := map[string]string{"a": "1", "b_2": "2"}

	assert.True(t, hasParams("{a} and {b_2}", params))
	assert.False(t, hasParams("{a} and {c}", params))
	assert.True(t, hasParams("literal {Not A Param} {", params))
	assert.False(t, hasParams("{x{c}", params))
}

func TestCatalog_SeverityPrecedence(t *testing.T) {
	c := NewCatalog().
		Set("r", Phrase{Mild: "any {message}"}).
		SetFor("r", core.SeverityError, Phrase{Mild: "error {message}", Rude: "ERROR {message}"})

	p := NewPresenter(c)
	findings := []core.Finding{
		{RuleID: "r", Severity: core.SeverityWarning, Message: "m"},
		{RuleID: "r", Severity: core.SeverityError, Message: "m"},
	}

	mild := p.Present(findings, core.ToneMild)
	assert.Equal(t, "any m", mild[0].Text)
	assert.Equal(t, "error m", mild[1].Text)

	// missing tone variants fall back to Mild
	rude := p.Present(findings, core.ToneRude)
	assert.Equal(t, "any m", rude[0].Text)
	assert.Equal(t, "ERROR m", rude[1].Text)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Warning", Label(core.SeverityWarning))
	assert.Equal(t, "Error", Label(core.SeverityError))
}

func TestAnalyzerStatus(t *testing.T) {
	assert.Equal(t, "go vet successful", AnalyzerStatus("go vet", 0, nil, core.ToneMild))
	assert.Equal(t, "go vet: Oh, you did not break anything. Strange!", AnalyzerStatus("go vet", 0, nil, core.ToneSarcastic))
	assert.Equal(t, "go vet reported 1 problem", AnalyzerStatus("go vet", 1, nil, core.ToneMild))
	assert.Equal(t, "go vet: Of course you broke something. How utterly predictable: 3 problems.", AnalyzerStatus("go vet", 3, nil, core.ToneRude))
	assert.Equal(t, "go vet could not run: exit status 2", AnalyzerStatus("go vet", 0, errors.New("exit status 2"), core.ToneRude))
}
