// Package source turns file content into an immutable, analyzable Unit.
//
// Go files are parsed with go/parser and walked once to measure every
// function declaration. Any other file becomes a text-only Unit so that
// line-oriented rules still apply to it.
package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/grumpy/pkg/core"
)

// Function is one function-like region of a file with its metrics.
type Function struct {
	Name     string    `json:"name"`
	Receiver string    `json:"receiver,omitempty"`
	Span     core.Span `json:"span"`

	// Complexity is the cyclomatic-style score, see Measure.
	Complexity int `json:"complexity"`
	Lines      int `json:"lines"`
	Params     int `json:"params"`
	Returns    int `json:"returns"`
	MaxDepth   int `json:"max_depth"`
}

// QualifiedName returns "Recv.Name" for methods and Name otherwise.
func (f Function) QualifiedName() string {
	if f.Receiver == "" {
		return f.Name
	}
	return strings.TrimPrefix(f.Receiver, "*") + "." + f.Name
}

// Warning is a recoverable parse problem confined to one region of a file.
type Warning struct {
	Span    core.Span
	Message string
}

// Unit is one analyzed file. A Unit is never modified after Parse returns.
type Unit struct {
	Path    string
	Hash    string
	Content []byte

	// File and FileSet are nil for non-Go files.
	File    *ast.File
	FileSet *token.FileSet

	Functions []Function
	Warnings  []Warning
	Lines     int
}

// IsGo reports whether the unit carries a Go syntax tree.
func (u *Unit) IsGo() bool {
	return u.File != nil
}

// Text returns the file content as a string.
func (u *Unit) Text() string {
	return string(u.Content)
}

// Position converts a token.Pos of this unit into a line/column pair.
func (u *Unit) Position(pos token.Pos) (line, col int) {
	if u.FileSet == nil || !pos.IsValid() {
		return 0, 0
	}
	p := u.FileSet.Position(pos)
	return p.Line, p.Column
}

// ParseError reports a file that could not be parsed at all.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Hash returns the content hash used for change detection.
func Hash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:8]) // Use first 8 bytes for brevity
}

// Parser builds a Unit from a path and its content.
// The engine accepts any Parser so tests can observe parse calls.
type Parser interface {
	Parse(path string, content []byte) (*Unit, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(path string, content []byte) (*Unit, error)

// Parse calls f(path, content).
func (f ParserFunc) Parse(path string, content []byte) (*Unit, error) {
	return f(path, content)
}

// Default is the Parser used when none is configured.
var Default Parser = ParserFunc(Parse)

// Parse builds a Unit for path.
//
// A Go file whose package clause cannot be parsed yields a *ParseError.
// Syntax errors after the package clause are kept as Warnings and the
// declarations that did parse are still measured.
func Parse(path string, content []byte) (*Unit, error) {
	unit := &Unit{
		Path:    path,
		Hash:    Hash(content),
		Content: content,
		Lines:   countLines(content),
	}

	if filepath.Ext(path) != ".go" {
		return unit, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments|parser.AllErrors|parser.SkipObjectResolution)
	if file == nil || file.Name == nil || file.Name.Name == "" {
		return nil, newParseError(path, err)
	}

	unit.File = file
	unit.FileSet = fset
	unit.Warnings = warningsFrom(err)
	unit.Functions = Measure(fset, file)
	return unit, nil
}

func newParseError(path string, err error) *ParseError {
	pe := &ParseError{Path: path, Message: "missing or invalid package clause", Err: err}
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		pe.Line = list[0].Pos.Line
		pe.Column = list[0].Pos.Column
		pe.Message = list[0].Msg
	}
	return pe
}

func warningsFrom(err error) []Warning {
	if err == nil {
		return nil
	}
	var list scanner.ErrorList
	if !errors.As(err, &list) {
		return []Warning{{Message: err.Error()}}
	}
	warnings := make([]Warning, 0, len(list))
	for _, e := range list {
		warnings = append(warnings, Warning{
			Span:    core.Span{StartLine: e.Pos.Line, StartColumn: e.Pos.Column, EndLine: e.Pos.Line, EndColumn: e.Pos.Column},
			Message: e.Msg,
		})
	}
	return warnings
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
