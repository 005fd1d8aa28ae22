// Package report maps findings to user-facing messages in the selected
// tone. It never adds, drops or reorders findings.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/lint"
)

// Rendered is a finding paired with its display text.
type Rendered struct {
	Finding core.Finding `json:"finding"`
	// Label is the title-cased severity, e.g. "Warning".
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Presenter renders findings with a catalog.
type Presenter struct {
	catalog *Catalog
}

// NewPresenter returns a Presenter using catalog, or the default catalog
// when nil.
func NewPresenter(catalog *Catalog) *Presenter {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Presenter{catalog: catalog}
}

// Present renders findings with the default catalog.
func Present(findings []core.Finding, tone core.Tone) []Rendered {
	return NewPresenter(nil).Present(findings, tone)
}

// Present returns one Rendered per finding, in the same order.
func (p *Presenter) Present(findings []core.Finding, tone core.Tone) []Rendered {
	title := cases.Title(language.English)
	out := make([]Rendered, len(findings))
	for i, f := range findings {
		out[i] = Rendered{
			Finding: f,
			Label:   title.String(f.Severity.String()),
			Text:    p.text(f, tone),
		}
	}
	return out
}

// Label returns the title-cased severity name.
func Label(sev core.Severity) string {
	return cases.Title(language.English).String(sev.String())
}

func (p *Presenter) text(f core.Finding, tone core.Tone) string {
	// rule_error findings carry the failing rule's id; its phrasing would
	// describe a violation that never happened.
	if f.Kind == core.KindRuleError {
		return f.Message
	}
	phrase, ok := p.catalog.Lookup(f.RuleID, f.Severity)
	if !ok {
		return f.Message
	}
	tmpl := phrase.template(tone)
	if tmpl == "" {
		return f.Message
	}

	params := make(map[string]string, len(f.Params)+4)
	for k, v := range f.Params {
		params[k] = v
	}
	params["path"] = f.Path
	params["rule"] = f.RuleID
	params["line"] = strconv.Itoa(f.Span.StartLine)
	params["message"] = f.Message

	if !hasParams(tmpl, params) {
		return f.Message
	}
	return lint.Expand(tmpl, params)
}

// hasParams reports whether params supplies every {name} placeholder of
// tmpl.
func hasParams(tmpl string, params map[string]string) bool {
	for rest := tmpl; ; {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			return true
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return true
		}
		name := rest[start+1 : start+end]
		if i := strings.LastIndexByte(name, '{'); i >= 0 {
			rest = rest[start+1+i:]
			continue
		}
		if isParamName(name) {
			if _, ok := params[name]; !ok {
				return false
			}
		}
		rest = rest[start+end+1:]
	}
}

func isParamName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// AnalyzerStatus phrases the outcome of an external analyzer run: clean,
// reported findings, or failed to run.
func AnalyzerStatus(name string, findings int, err error, tone core.Tone) string {
	if err != nil {
		return fmt.Sprintf("%s could not run: %v", name, err)
	}
	if findings == 0 {
		switch tone {
		case core.ToneSarcastic:
			return name + ": Oh, you did not break anything. Strange!"
		case core.ToneRude:
			return name + ": Oh, you managed not to break anything? Well, there is a first time for everything."
		default:
			return name + " successful"
		}
	}
	switch tone {
	case core.ToneSarcastic:
		return fmt.Sprintf("%s: Oh, you did break something (as usual): %d %s.", name, findings, plural(findings, "problem"))
	case core.ToneRude:
		return fmt.Sprintf("%s: Of course you broke something. How utterly predictable: %d %s.", name, findings, plural(findings, "problem"))
	default:
		return fmt.Sprintf("%s reported %d %s", name, findings, plural(findings, "problem"))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
