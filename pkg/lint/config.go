package lint

// Overrides is the last merge layer: per-rule changes coming from the
// project config and command-line flags.
type Overrides struct {
	// DisabledRules contains rule IDs to skip
	DisabledRules map[string]bool

	// EnabledRules contains rule IDs to turn on even if defined disabled
	EnabledRules map[string]bool

	// SeverityOverrides changes the severity of rules
	SeverityOverrides map[string]Severity

	// RuleOptions merges rule-specific options, e.g. thresholds
	RuleOptions map[string]map[string]any
}

// NewOverrides creates an empty override layer.
func NewOverrides() *Overrides {
	return &Overrides{
		DisabledRules:     make(map[string]bool),
		EnabledRules:      make(map[string]bool),
		SeverityOverrides: make(map[string]Severity),
		RuleOptions:       make(map[string]map[string]any),
	}
}

// IsDisabled returns true if the rule should be skipped.
func (o *Overrides) IsDisabled(ruleID string) bool {
	if o == nil {
		return false
	}
	return o.DisabledRules[ruleID]
}

// GetSeverity returns the severity for a rule, applying any override.
func (o *Overrides) GetSeverity(ruleID string, defaultSeverity Severity) Severity {
	if o != nil {
		if sev, ok := o.SeverityOverrides[ruleID]; ok {
			return sev
		}
	}
	return defaultSeverity
}

// Disable disables a rule by ID. Disabling wins over Enable.
func (o *Overrides) Disable(ruleID string) *Overrides {
	o.DisabledRules[ruleID] = true
	return o
}

// Enable turns a rule on by ID.
func (o *Overrides) Enable(ruleID string) *Overrides {
	o.EnabledRules[ruleID] = true
	return o
}

// SetSeverity overrides the severity for a rule.
func (o *Overrides) SetSeverity(ruleID string, severity Severity) *Overrides {
	o.SeverityOverrides[ruleID] = severity
	return o
}

// SetOptions merges options for a rule.
func (o *Overrides) SetOptions(ruleID string, opts map[string]any) *Overrides {
	merged := o.RuleOptions[ruleID]
	if merged == nil {
		merged = make(map[string]any, len(opts))
	}
	for k, v := range opts {
		merged[k] = v
	}
	o.RuleOptions[ruleID] = merged
	return o
}

// ruleIDs returns every rule ID mentioned by the overrides.
func (o *Overrides) ruleIDs() map[string]bool {
	ids := make(map[string]bool)
	if o == nil {
		return ids
	}
	for id := range o.DisabledRules {
		ids[id] = true
	}
	for id := range o.EnabledRules {
		ids[id] = true
	}
	for id := range o.SeverityOverrides {
		ids[id] = true
	}
	for id := range o.RuleOptions {
		ids[id] = true
	}
	return ids
}
