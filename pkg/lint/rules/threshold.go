// Package rules contains the built-in rule kinds and the default rule set.
package rules

import (
	"context"
	"fmt"
	"strconv"

	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/lint"
	"github.com/leapstack-labs/grumpy/pkg/source"
)

// Threshold option keys and their defaults.
const (
	OptMaxComplexity   = "max_complexity"
	OptMaxFunctionSize = "max_function_size"

	DefaultMaxComplexity   = 32
	DefaultMaxFunctionSize = 32
)

// metric selects one measurement of a function.
type metric struct {
	option   string
	fallback int
	value    func(fn source.Function) int
	message  string
}

var (
	complexityMetric = metric{
		option:   OptMaxComplexity,
		fallback: DefaultMaxComplexity,
		value:    func(fn source.Function) int { return fn.Complexity },
		message:  "function {function} has cyclomatic complexity {value} (max {limit})",
	}
	sizeMetric = metric{
		option:   OptMaxFunctionSize,
		fallback: DefaultMaxFunctionSize,
		value:    func(fn source.Function) int { return fn.Lines },
		message:  "function {function} is {value} lines long (max {limit})",
	}
)

// thresholdRule reports every function whose metric exceeds a limit.
type thresholdRule struct {
	lint.Base
	metric metric
}

// NewComplexity builds a complexity rule.
func NewComplexity(spec lint.Spec) (lint.Rule, error) {
	return newThreshold(spec, complexityMetric)
}

// NewFunctionSize builds a function size rule.
func NewFunctionSize(spec lint.Spec) (lint.Rule, error) {
	return newThreshold(spec, sizeMetric)
}

func newThreshold(spec lint.Spec, m metric) (lint.Rule, error) {
	if limit := lint.GetIntOption(spec.Options, m.option, m.fallback); limit <= 0 {
		return nil, fmt.Errorf("%s must be greater than 0, got %d", m.option, limit)
	}
	return &thresholdRule{Base: lint.NewBase(spec), metric: m}, nil
}

func (r *thresholdRule) Check(_ context.Context, unit *source.Unit, settings lint.Settings) ([]core.Finding, error) {
	limit := lint.GetIntOption(settings.Options, r.metric.option, r.metric.fallback)

	var findings []core.Finding
	for _, fn := range unit.Functions {
		value := r.metric.value(fn)
		if value <= limit {
			continue
		}
		params := map[string]string{
			"function": fn.QualifiedName(),
			"value":    strconv.Itoa(value),
			"limit":    strconv.Itoa(limit),
		}
		findings = append(findings, core.Finding{
			RuleID:  r.ID(),
			Path:    unit.Path,
			Span:    fn.Span,
			Message: lint.Expand(r.Message(r.metric.message), params),
			Params:  params,
		})
	}
	return findings, nil
}
