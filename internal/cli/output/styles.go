package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/grumpy/pkg/core"
)

// Styles holds lipgloss styles bound to one renderer.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Path    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
}

// NewStyles creates the default palette for r.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Underline(true),
		Header2: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Path:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("12")),
	}
}

// Severity returns the style for a finding severity.
func (s *Styles) Severity(sev core.Severity) lipgloss.Style {
	switch sev {
	case core.SeverityError:
		return s.Error
	case core.SeverityWarning:
		return s.Warning
	default:
		return s.Info
	}
}
