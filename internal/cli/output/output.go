// Package output renders command results for terminals, pipes and
// machines. Text mode is styled with lipgloss, markdown mode is plain
// and JSON mode is for tooling.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// OutputMode selects how results are written.
type OutputMode string

// Output modes.
const (
	// ModeAuto picks text on a terminal and markdown otherwise.
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Mode converts a configuration string to an OutputMode. Unknown values
// fall back to ModeAuto.
func Mode(s string) OutputMode {
	switch m := OutputMode(s); m {
	case ModeText, ModeMarkdown, ModeJSON:
		return m
	default:
		return ModeAuto
	}
}

// Modes returns the accepted output mode names.
func Modes() []string {
	return []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON)}
}

// Renderer writes command output.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   OutputMode
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	r := &Renderer{out: out, errOut: errOut, isTTY: isTTY, mode: mode}

	lr := lipgloss.NewRenderer(out)
	if r.EffectiveMode() != ModeText || !isTTY {
		lr.SetColorProfile(termenv.Ascii)
	} else {
		lr.SetColorProfile(termenv.EnvColorProfile())
	}
	r.styles = NewStyles(lr)
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
}

// EffectiveMode resolves ModeAuto against the terminal state.
func (r *Renderer) EffectiveMode() OutputMode {
	switch r.mode {
	case ModeText, ModeMarkdown, ModeJSON:
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the error output writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Styles returns the renderer's styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Println writes a line to standard output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output to standard output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a section header.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeMarkdown {
		prefix := "#"
		for i := 1; i < level; i++ {
			prefix += "#"
		}
		r.Println(prefix + " " + text)
		r.Println("")
		return
	}
	style := r.styles.Header1
	if level > 1 {
		style = r.styles.Header2
	}
	r.Println(style.Render(text))
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render(r.icon("✓") + msg))
}

// Warning writes a warning to the error output.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render(r.icon("!")+msg))
}

// Error writes an error to the error output.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render(r.icon("✗")+msg))
}

// Muted writes low-emphasis text.
func (r *Renderer) Muted(msg string) {
	r.Println(r.styles.Muted.Render(msg))
}

func (r *Renderer) icon(s string) string {
	if r.EffectiveMode() != ModeText {
		return ""
	}
	return s + " "
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
