package lint

import "github.com/leapstack-labs/grumpy/pkg/core"

// Severity is an alias for core.Severity so rule kinds can use lint.Severity.
type Severity = core.Severity

// Severity levels re-exported from core.
const (
	SeverityError   = core.SeverityError
	SeverityWarning = core.SeverityWarning
	SeverityInfo    = core.SeverityInfo
)

// ParseSeverity is re-exported from core.
var ParseSeverity = core.ParseSeverity
