package lint

import "fmt"

// ConfigError is fatal: the rule set cannot be built and nothing is evaluated.
type ConfigError struct {
	Source string // rule file path, "builtin" or "config"
	RuleID string
	Msg    string
	Err    error
}

func (e *ConfigError) Error() string {
	prefix := e.Source
	if e.RuleID != "" {
		prefix = fmt.Sprintf("%s: rule %q", e.Source, e.RuleID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DuplicateRuleError reports a rule identifier defined by two rule files
// without an extends reference. It is returned as a warning; the later
// definition wins.
type DuplicateRuleError struct {
	ID     string
	First  string
	Second string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("rule %q defined in %s is redefined in %s (last definition wins; use extends to silence)", e.ID, e.First, e.Second)
}

// UnknownRuleError reports an override for a rule that no source defines.
// It is returned as a warning.
type UnknownRuleError struct {
	ID     string
	Source string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("%s: unknown rule %q ignored", e.Source, e.ID)
}

// RuleError is a failure of one rule on one file. The engine turns it into
// a single rule_error finding and keeps going.
type RuleError struct {
	RuleID string
	Path   string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s failed on %s: %v", e.RuleID, e.Path, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}
