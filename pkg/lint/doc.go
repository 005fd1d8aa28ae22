// Package lint provides the rule contract and the rule set loader.
//
// # Architecture
//
// The lint package is organized in three layers:
//
//  1. Root package (pkg/lint/): the Rule interface, Spec, RuleSet and the loader
//  2. Built-in kinds (pkg/lint/rules/): complexity, function_size and pattern rules
//  3. Script kind (pkg/lint/script/): rules written in Starlark
//
// # Rule Sets
//
// A RuleSet is built by an explicit, ordered merge and never changes afterwards:
//
//	result, err := lint.Load(rules.Builtins(), []string{"rules.yaml"}, overrides, rules.Kinds())
//	if err != nil {
//		return err // *lint.ConfigError, nothing was evaluated
//	}
//	for _, w := range result.Warnings {
//		logger.Warn("rule set", "warning", w)
//	}
//
// Merge order is built-ins, then each rule file in the order given, then the
// inline overrides. Later sources may add a rule, change its severity or
// thresholds, or disable it.
//
// # Rule Files
//
// Rule files are YAML documents with a top-level "rules" list:
//
//	rules:
//	  - id: no-todo
//	    enabled: true
//	  - id: max-complexity
//	    severity: error
//	    max_complexity: 8
//	  - id: no-panic
//	    kind: pattern
//	    category: reliability
//	    severity: warning
//	    options:
//	      pattern: '\bpanic\('
//
// Redefining an identifier that an earlier rule file already defined is a
// DuplicateRuleError warning and the later file wins. Naming the earlier
// definition with "extends" marks the override as intentional. A new
// identifier with "extends" starts from a copy of the base rule.
//
// # Overrides
//
// Use Overrides to apply configuration on top of the rule files:
//
//	overrides := lint.NewOverrides()
//	overrides.Disable("no-todo")
//	overrides.SetSeverity("max-complexity", core.SeverityError)
//	overrides.SetOptions("max-complexity", map[string]any{"max_complexity": 5})
package lint
