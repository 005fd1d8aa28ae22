package core

import (
	"fmt"
	"strings"
)

// =============================================================================
// Severity
// =============================================================================

// Severity indicates the importance of a finding.
// Lower values are more severe.
type Severity int

// Severity levels for findings.
const (
	// SeverityError fails the run with a non-zero exit code.
	SeverityError Severity = iota
	// SeverityWarning indicates a potential issue that should be reviewed.
	SeverityWarning
	// SeverityInfo indicates informational feedback.
	SeverityInfo
)

// SeverityOff is the configuration keyword that disables a rule.
const SeverityOff = "off"

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// AtLeast reports whether s is as severe as threshold or more.
func (s Severity) AtLeast(threshold Severity) bool {
	return s <= threshold
}

// ParseSeverity converts a string to a Severity value.
// Returns the severity and true if valid, or SeverityWarning and false if invalid.
// Both "warn" and "warning" are accepted.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return SeverityError, true
	case "warning", "warn":
		return SeverityWarning, true
	case "info":
		return SeverityInfo, true
	default:
		return SeverityWarning, false
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	sev, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("invalid severity %q (valid: error, warning, info)", string(text))
	}
	*s = sev
	return nil
}
