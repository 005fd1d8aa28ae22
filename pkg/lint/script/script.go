// Package script implements rules written in Starlark.
//
// A script defines check(unit, options) and returns a list of dicts with
// the keys line, column, end_line, end_column, message and params. Every
// key is optional. The unit argument is a struct:
//
//	unit.path        file path
//	unit.is_go       whether the file was parsed as Go
//	unit.lines       list of source lines
//	unit.functions   list of structs with name, receiver, start_line,
//	                 end_line, complexity, lines, params, returns, max_depth
//
// Example:
//
//	def check(unit, options):
//	    limit = options.get("max_params", 4)
//	    return [
//	        {"line": f.start_line, "message": "too many parameters in " + f.name}
//	        for f in unit.functions
//	        if f.params > limit
//	    ]
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/lint"
	"github.com/leapstack-labs/grumpy/pkg/source"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// DefaultMaxSteps bounds the work one check call may do.
const DefaultMaxSteps = 1_000_000

type rule struct {
	lint.Base
	check    *starlark.Function
	maxSteps uint64
}

type result struct {
	Line      int               `mapstructure:"line"`
	Column    int               `mapstructure:"column"`
	EndLine   int               `mapstructure:"end_line"`
	EndColumn int               `mapstructure:"end_column"`
	Message   string            `mapstructure:"message"`
	Params    map[string]string `mapstructure:"params"`
}

// New compiles the script of spec and returns the rule.
func New(spec lint.Spec) (lint.Rule, error) {
	base := lint.NewBase(spec)
	if strings.TrimSpace(spec.Script) == "" {
		if !spec.Enabled {
			return &rule{Base: base}, nil
		}
		return nil, errors.New("script rule requires a script or script_file")
	}

	thread := &starlark.Thread{
		Name: fmt.Sprintf("load:%s", spec.ID),
		Print: func(_ *starlark.Thread, _ string) {
			// Ignore prints while loading
		},
	}
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, spec.ID+".star", spec.Script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution error: %w", err)
	}

	check, ok := globals["check"].(*starlark.Function)
	if !ok {
		return nil, errors.New("script must define check(unit, options)")
	}
	if check.NumParams() != 2 {
		return nil, fmt.Errorf("check must take 2 parameters (unit, options), got %d", check.NumParams())
	}
	// frozen globals make the function safe to call from many threads
	globals.Freeze()

	steps := lint.GetIntOption(spec.Options, "max_steps", DefaultMaxSteps)
	if steps <= 0 {
		steps = DefaultMaxSteps
	}

	return &rule{Base: base, check: check, maxSteps: uint64(steps)}, nil
}

func (r *rule) Check(ctx context.Context, unit *source.Unit, settings lint.Settings) ([]core.Finding, error) {
	if r.check == nil {
		return nil, nil
	}

	thread := &starlark.Thread{
		Name: fmt.Sprintf("%s:%s", r.ID(), unit.Path),
		Print: func(_ *starlark.Thread, _ string) {
			// No-op for rule execution
		},
	}
	thread.SetMaxExecutionSteps(r.maxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	opts, err := toStarlark(settings.Options)
	if err != nil {
		return nil, err
	}
	if opts == starlark.None {
		opts = starlark.NewDict(0)
	}

	value, err := starlark.Call(thread, r.check, starlark.Tuple{unitValue(unit), opts}, nil)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, errors.New(evalErr.Backtrace())
		}
		return nil, err
	}

	return r.decode(unit, value)
}

func (r *rule) decode(unit *source.Unit, value starlark.Value) ([]core.Finding, error) {
	raw, err := toGo(value)
	if err != nil {
		return nil, fmt.Errorf("check result: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("check must return a list, got %s", value.Type())
	}

	findings := make([]core.Finding, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("check result %d must be a dict", i)
		}
		var res result
		if err := lint.DecodeOptions(fields, &res); err != nil {
			return nil, fmt.Errorf("check result %d: %w", i, err)
		}
		if res.EndLine == 0 {
			res.EndLine = res.Line
		}
		if res.Message == "" {
			res.Message = r.Message("script rule " + r.ID() + " reported a problem")
		}
		findings = append(findings, core.Finding{
			RuleID:  r.ID(),
			Path:    unit.Path,
			Span:    core.Span{StartLine: res.Line, StartColumn: res.Column, EndLine: res.EndLine, EndColumn: res.EndColumn},
			Message: lint.Expand(res.Message, res.Params),
			Params:  res.Params,
		})
	}
	return findings, nil
}

func unitValue(unit *source.Unit) starlark.Value {
	lines := strings.Split(unit.Text(), "\n")
	lineValues := make([]starlark.Value, len(lines))
	for i, l := range lines {
		lineValues[i] = starlark.String(l)
	}

	functions := make([]starlark.Value, len(unit.Functions))
	for i, fn := range unit.Functions {
		functions[i] = starlarkstruct.FromStringDict(starlark.String("function"), starlark.StringDict{
			"name":       starlark.String(fn.Name),
			"receiver":   starlark.String(fn.Receiver),
			"start_line": starlark.MakeInt(fn.Span.StartLine),
			"end_line":   starlark.MakeInt(fn.Span.EndLine),
			"complexity": starlark.MakeInt(fn.Complexity),
			"lines":      starlark.MakeInt(fn.Lines),
			"params":     starlark.MakeInt(fn.Params),
			"returns":    starlark.MakeInt(fn.Returns),
			"max_depth":  starlark.MakeInt(fn.MaxDepth),
		})
	}

	return starlarkstruct.FromStringDict(starlark.String("unit"), starlark.StringDict{
		"path":      starlark.String(unit.Path),
		"is_go":     starlark.Bool(unit.IsGo()),
		"lines":     starlark.NewList(lineValues),
		"functions": starlark.NewList(functions),
	})
}
