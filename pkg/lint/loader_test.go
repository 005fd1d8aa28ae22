package lint_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/grumpy/pkg/core"
	"github.com/leapstack-labs/grumpy/pkg/lint"
	"github.com/leapstack-labs/grumpy/pkg/source"
)

// stubRule implements lint.Rule for testing
type stubRule struct {
	lint.Base
}

func (s *stubRule) Check(_ context.Context, _ *source.Unit, _ lint.Settings) ([]core.Finding, error) {
	return nil, nil
}

func stubKinds() lint.Kinds {
	factory := func(spec lint.Spec) (lint.Rule, error) {
		return &stubRule{Base: lint.NewBase(spec)}, nil
	}
	return lint.Kinds{"stub": factory, "other": factory}
}

func stubBuiltins() []lint.Spec {
	return []lint.Spec{
		{ID: "R", Kind: "stub", Category: "test", Severity: core.SeverityWarning, Enabled: true, Options: map[string]any{"max": 10}},
		{ID: "S", Kind: "stub", Category: "test", Severity: core.SeverityInfo, Enabled: true},
	}
}

func mustParse(t *testing.T, path, content string) *lint.RuleFile {
	t.Helper()
	rf, err := lint.ParseRuleFile(path, []byte(content))
	require.NoError(t, err)
	return rf
}

func TestMerge_BuiltinsOnly(t *testing.T) {
	result, err := lint.Merge(stubBuiltins(), nil, nil, stubKinds())
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 2, result.RuleSet.Len())

	entry, ok := result.RuleSet.Lookup("R")
	require.True(t, ok)
	assert.Equal(t, "R", entry.Rule.ID())
	assert.Equal(t, core.SeverityWarning, entry.Spec.Severity)
	assert.Equal(t, lint.OriginBuiltin, entry.Spec.Origin)
}

func TestMerge_OverridePrecedence(t *testing.T) {
	custom := mustParse(t, "custom.yaml", `
rules:
  - id: R
    severity: error
`)
	overrides := lint.NewOverrides().Disable("R")

	result, err := lint.Merge(stubBuiltins(), []*lint.RuleFile{custom}, overrides, stubKinds())
	require.NoError(t, err)

	entry, ok := result.RuleSet.Lookup("R")
	require.True(t, ok)
	assert.False(t, entry.Spec.Enabled)
	assert.Equal(t, core.SeverityOff, entry.SeverityLabel())

	for _, e := range result.RuleSet.Enabled() {
		assert.NotEqual(t, "R", e.Spec.ID)
	}
}

func TestMerge_CustomFileRaisesSeverity(t *testing.T) {
	custom := mustParse(t, "custom.yaml", `
rules:
  - id: R
    severity: error
    options:
      max: 3
`)
	result, err := lint.Merge(stubBuiltins(), []*lint.RuleFile{custom}, nil, stubKinds())
	require.NoError(t, err)

	entry, _ := result.RuleSet.Lookup("R")
	assert.True(t, entry.Spec.Enabled)
	assert.Equal(t, core.SeverityError, entry.Spec.Severity)
	assert.Equal(t, 3, entry.Spec.Options["max"])
	assert.Equal(t, "error", entry.SeverityLabel())
	// overriding a built-in is not a duplicate
	assert.Empty(t, result.Warnings)
}

func TestMerge_DuplicateAcrossFilesWarnsLastWins(t *testing.T) {
	first := mustParse(t, "first.yaml", `
rules:
  - id: custom
    kind: stub
    category: one
    severity: warning
`)
	second := mustParse(t, "second.yaml", `
rules:
  - id: custom
    kind: stub
    category: two
    severity: error
`)

	result, err := lint.Merge(stubBuiltins(), []*lint.RuleFile{first, second}, nil, stubKinds())
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	var dup *lint.DuplicateRuleError
	require.True(t, errors.As(result.Warnings[0], &dup))
	assert.Equal(t, "custom", dup.ID)
	assert.Equal(t, "first.yaml", dup.First)
	assert.Equal(t, "second.yaml", dup.Second)

	entry, _ := result.RuleSet.Lookup("custom")
	assert.Equal(t, "two", entry.Spec.Category)
	assert.Equal(t, core.SeverityError, entry.Spec.Severity)
}

func TestMerge_ExtendsSilencesDuplicate(t *testing.T) {
	first := mustParse(t, "first.yaml", `
rules:
  - id: custom
    kind: stub
    severity: warning
`)
	second := mustParse(t, "second.yaml", `
rules:
  - id: custom
    extends: custom
    severity: error
`)

	result, err := lint.Merge(stubBuiltins(), []*lint.RuleFile{first, second}, nil, stubKinds())
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	entry, _ := result.RuleSet.Lookup("custom")
	assert.Equal(t, core.SeverityError, entry.Spec.Severity)
}

func TestMerge_ExtendsClonesBase(t *testing.T) {
	custom := mustParse(t, "custom.yaml", `
rules:
  - id: R-strict
    extends: R
    severity: error
    options:
      max: 2
`)
	result, err := lint.Merge(stubBuiltins(), []*lint.RuleFile{custom}, nil, stubKinds())
	require.NoError(t, err)

	base, _ := result.RuleSet.Lookup("R")
	strict, ok := result.RuleSet.Lookup("R-strict")
	require.True(t, ok)
	assert.Equal(t, "stub", strict.Spec.Kind)
	assert.Equal(t, 2, strict.Spec.Options["max"])
	assert.Equal(t, 10, base.Spec.Options["max"], "base options must not be mutated")
}

func TestMerge_TopLevelThresholds(t *testing.T) {
	custom := mustParse(t, "custom.yaml", `
rules:
  - id: R
    max_complexity: 5
    max_function_size: 40
`)
	result, err := lint.Merge(stubBuiltins(), []*lint.RuleFile{custom}, nil, stubKinds())
	require.NoError(t, err)

	entry, _ := result.RuleSet.Lookup("R")
	assert.Equal(t, 5, entry.Spec.Options["max_complexity"])
	assert.Equal(t, 40, entry.Spec.Options["max_function_size"])
}

func TestMerge_UnknownOverrideWarns(t *testing.T) {
	overrides := lint.NewOverrides().SetSeverity("nope", core.SeverityError)

	result, err := lint.Merge(stubBuiltins(), nil, overrides, stubKinds())
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	var unknown *lint.UnknownRuleError
	require.True(t, errors.As(result.Warnings[0], &unknown))
	assert.Equal(t, "nope", unknown.ID)
}

func TestMerge_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "missing id",
			content: "rules:\n  - kind: stub\n",
			errMsg:  "without id",
		},
		{
			name:    "new rule without kind",
			content: "rules:\n  - id: fresh\n",
			errMsg:  "requires a kind",
		},
		{
			name:    "unknown kind",
			content: "rules:\n  - id: fresh\n    kind: magic\n",
			errMsg:  `unknown rule kind "magic"`,
		},
		{
			name:    "invalid severity",
			content: "rules:\n  - id: R\n    severity: loud\n",
			errMsg:  `invalid severity "loud"`,
		},
		{
			name:    "extends unknown",
			content: "rules:\n  - id: fresh\n    extends: ghost\n",
			errMsg:  `extends unknown rule "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf := mustParse(t, "bad.yaml", tt.content)
			_, err := lint.Merge(stubBuiltins(), []*lint.RuleFile{rf}, nil, stubKinds())
			require.Error(t, err)

			var cfgErr *lint.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMerge_FactoryErrorIsConfigError(t *testing.T) {
	kinds := stubKinds()
	kinds["broken"] = func(_ lint.Spec) (lint.Rule, error) {
		return nil, errors.New("bad options")
	}
	rf := mustParse(t, "custom.yaml", "rules:\n  - id: b\n    kind: broken\n")

	_, err := lint.Merge(stubBuiltins(), []*lint.RuleFile{rf}, nil, kinds)
	var cfgErr *lint.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "b", cfgErr.RuleID)
	assert.Contains(t, err.Error(), "bad options")
}

func TestParseRuleFile_Malformed(t *testing.T) {
	_, err := lint.ParseRuleFile("bad.yaml", []byte("rules:\n  - id: R\n    max_complexty: 3\n"))
	require.Error(t, err)
	var cfgErr *lint.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestParseRuleFile_Empty(t *testing.T) {
	rf, err := lint.ParseRuleFile("empty.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, rf.Rules)
}

func TestLoad_ReadsScriptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "check.star"), []byte("def check(unit, options):\n    return []\n"), 0o600))
	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("rules:\n  - id: scripted\n    kind: stub\n    script_file: check.star\n"), 0o600))

	result, err := lint.Load(stubBuiltins(), []string{rulesPath}, nil, stubKinds())
	require.NoError(t, err)

	entry, ok := result.RuleSet.Lookup("scripted")
	require.True(t, ok)
	assert.Contains(t, entry.Spec.Script, "def check")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := lint.Load(stubBuiltins(), []string{filepath.Join(t.TempDir(), "missing.yaml")}, nil, stubKinds())
	var cfgErr *lint.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestRuleSet_Fingerprint(t *testing.T) {
	a, err := lint.Merge(stubBuiltins(), nil, nil, stubKinds())
	require.NoError(t, err)
	b, err := lint.Merge(stubBuiltins(), nil, nil, stubKinds())
	require.NoError(t, err)
	assert.Equal(t, a.RuleSet.Fingerprint(), b.RuleSet.Fingerprint())

	c, err := lint.Merge(stubBuiltins(), nil, lint.NewOverrides().SetOptions("R", map[string]any{"max": 11}), stubKinds())
	require.NoError(t, err)
	assert.NotEqual(t, a.RuleSet.Fingerprint(), c.RuleSet.Fingerprint())
}

func TestExpand(t *testing.T) {
	got := lint.Expand("function {function} is {value} (max {limit})", map[string]string{
		"function": "f", "value": "7", "limit": "5",
	})
	assert.Equal(t, "function f is 7 (max 5)", got)
	assert.Equal(t, "plain", lint.Expand("plain", nil))
}
