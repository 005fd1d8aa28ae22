package lint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/leapstack-labs/grumpy/pkg/core"
)

// Entry is one effective rule of a RuleSet.
type Entry struct {
	Rule Rule
	Spec Spec
}

// Settings returns the evaluation settings for the entry.
func (e Entry) Settings() Settings {
	return Settings{Severity: e.Spec.Severity, Options: e.Spec.Options}
}

// SeverityLabel returns the effective severity, or "off" when disabled.
func (e Entry) SeverityLabel() string {
	if !e.Spec.Enabled {
		return core.SeverityOff
	}
	return e.Spec.Severity.String()
}

// RuleSet is the merged, immutable collection of rules. It holds exactly one
// effective definition per identifier. Replace a RuleSet, never mutate it.
type RuleSet struct {
	entries     []Entry
	index       map[string]int
	fingerprint string
}

// NewRuleSet builds a RuleSet from specs and their rules.
// Entries are ordered by rule ID.
func NewRuleSet(entries []Entry) *RuleSet {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Spec.ID < sorted[j].Spec.ID
	})

	rs := &RuleSet{
		entries: sorted,
		index:   make(map[string]int, len(sorted)),
	}
	specs := make([]Spec, 0, len(sorted))
	for i, e := range sorted {
		rs.index[e.Spec.ID] = i
		specs = append(specs, e.Spec)
	}
	rs.fingerprint = fingerprint(specs)
	return rs
}

// Entries returns all rules, enabled or not, ordered by ID.
func (rs *RuleSet) Entries() []Entry {
	if rs == nil {
		return nil
	}
	out := make([]Entry, len(rs.entries))
	copy(out, rs.entries)
	return out
}

// Enabled returns the enabled rules ordered by ID.
func (rs *RuleSet) Enabled() []Entry {
	if rs == nil {
		return nil
	}
	out := make([]Entry, 0, len(rs.entries))
	for _, e := range rs.entries {
		if e.Spec.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// Lookup returns the entry for a rule ID.
func (rs *RuleSet) Lookup(id string) (Entry, bool) {
	if rs == nil {
		return Entry{}, false
	}
	i, ok := rs.index[id]
	if !ok {
		return Entry{}, false
	}
	return rs.entries[i], true
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.entries)
}

// Fingerprint identifies the effective definitions. Two rule sets with the
// same fingerprint evaluate every file identically.
func (rs *RuleSet) Fingerprint() string {
	if rs == nil {
		return ""
	}
	return rs.fingerprint
}

func fingerprint(specs []Spec) string {
	// json.Marshal sorts map keys, which keeps the digest stable
	data, err := json.Marshal(specs)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
