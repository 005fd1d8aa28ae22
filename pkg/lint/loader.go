package lint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/grumpy/pkg/core"
	"gopkg.in/yaml.v3"
)

// Origins used for specs that do not come from a rule file.
const (
	OriginBuiltin = "builtin"
	OriginConfig  = "config"
)

// Def is one entry of a rule file. Unset fields keep the value of the rule
// being overridden.
type Def struct {
	ID          string         `yaml:"id"`
	Kind        string         `yaml:"kind"`
	Category    string         `yaml:"category"`
	Description string         `yaml:"description"`
	Severity    string         `yaml:"severity"`
	Enabled     *bool          `yaml:"enabled"`
	Extends     string         `yaml:"extends"`
	Message     string         `yaml:"message"`
	Script      string         `yaml:"script"`
	ScriptFile  string         `yaml:"script_file"`
	Options     map[string]any `yaml:"options"`

	// Thresholds may be given at the top level of an entry.
	MaxComplexity   *int `yaml:"max_complexity"`
	MaxFunctionSize *int `yaml:"max_function_size"`
}

// RuleFile is a parsed rule file.
type RuleFile struct {
	Path  string `yaml:"-"`
	Rules []Def  `yaml:"rules"`
}

// LoadResult is the outcome of a successful Load.
type LoadResult struct {
	RuleSet  *RuleSet
	Warnings []error
}

// ParseRuleFile decodes a rule file. Unknown fields are rejected so that a
// typo in a threshold name does not silently keep the default.
func ParseRuleFile(path string, data []byte) (*RuleFile, error) {
	rf := &RuleFile{Path: path}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(rf); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Source: path, Msg: "malformed rule file", Err: err}
	}
	for i := range rf.Rules {
		def := &rf.Rules[i]
		if def.ScriptFile == "" {
			continue
		}
		scriptPath := def.ScriptFile
		if !filepath.IsAbs(scriptPath) {
			scriptPath = filepath.Join(filepath.Dir(path), scriptPath)
		}
		content, err := os.ReadFile(scriptPath)
		if err != nil {
			return nil, &ConfigError{Source: path, RuleID: def.ID, Msg: "failed to read script_file", Err: err}
		}
		def.Script = string(content)
	}
	return rf, nil
}

// ReadRuleFiles reads and parses rule files in order.
func ReadRuleFiles(paths []string) ([]*RuleFile, error) {
	files := make([]*RuleFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Source: path, Msg: "failed to read rule file", Err: err}
		}
		rf, err := ParseRuleFile(path, data)
		if err != nil {
			return nil, err
		}
		files = append(files, rf)
	}
	return files, nil
}

// Load reads the rule files and merges them, see Merge.
func Load(builtins []Spec, paths []string, overrides *Overrides, kinds Kinds) (*LoadResult, error) {
	files, err := ReadRuleFiles(paths)
	if err != nil {
		return nil, err
	}
	return Merge(builtins, files, overrides, kinds)
}

// Merge builds a RuleSet from built-ins, then each rule file in order, then
// overrides. Any *ConfigError aborts the merge. Duplicate definitions and
// overrides of unknown rules are returned as warnings.
func Merge(builtins []Spec, files []*RuleFile, overrides *Overrides, kinds Kinds) (*LoadResult, error) {
	m := &merger{specs: make(map[string]Spec), kinds: kinds}

	for _, spec := range builtins {
		if _, exists := m.specs[spec.ID]; exists {
			return nil, &ConfigError{Source: OriginBuiltin, RuleID: spec.ID, Msg: "duplicate built-in rule"}
		}
		spec = spec.Clone()
		spec.Origin = OriginBuiltin
		m.add(spec)
	}

	for _, rf := range files {
		for _, def := range rf.Rules {
			if err := m.applyDef(rf.Path, def); err != nil {
				return nil, err
			}
		}
	}

	m.applyOverrides(overrides)

	entries := make([]Entry, 0, len(m.order))
	for _, id := range m.order {
		spec := m.specs[id]
		factory, ok := kinds[spec.Kind]
		if !ok {
			return nil, &ConfigError{Source: spec.Origin, RuleID: id, Msg: fmt.Sprintf("unknown rule kind %q", spec.Kind)}
		}
		rule, err := factory(spec)
		if err != nil {
			return nil, &ConfigError{Source: spec.Origin, RuleID: id, Msg: "invalid rule", Err: err}
		}
		entries = append(entries, Entry{Rule: rule, Spec: spec})
	}

	return &LoadResult{RuleSet: NewRuleSet(entries), Warnings: m.warnings}, nil
}

type merger struct {
	specs    map[string]Spec
	order    []string
	kinds    Kinds
	warnings []error
}

func (m *merger) add(spec Spec) {
	if _, exists := m.specs[spec.ID]; !exists {
		m.order = append(m.order, spec.ID)
	}
	m.specs[spec.ID] = spec
}

func (m *merger) applyDef(path string, def Def) error {
	def.ID = strings.TrimSpace(def.ID)
	if def.ID == "" {
		return &ConfigError{Source: path, Msg: "rule entry without id"}
	}

	existing, exists := m.specs[def.ID]
	var base Spec

	switch {
	case def.Extends != "":
		parent, ok := m.specs[def.Extends]
		if !ok {
			return &ConfigError{Source: path, RuleID: def.ID, Msg: fmt.Sprintf("extends unknown rule %q", def.Extends)}
		}
		base = parent.Clone()
		base.ID = def.ID
	case exists:
		if existing.Origin != OriginBuiltin {
			m.warnings = append(m.warnings, &DuplicateRuleError{ID: def.ID, First: existing.Origin, Second: path})
		}
		base = existing.Clone()
	default:
		if def.Kind == "" {
			return &ConfigError{Source: path, RuleID: def.ID, Msg: "new rule requires a kind"}
		}
		base = Spec{ID: def.ID, Severity: core.SeverityWarning, Enabled: true, Options: map[string]any{}}
	}

	if def.Kind != "" {
		if _, ok := m.kinds[def.Kind]; !ok {
			return &ConfigError{Source: path, RuleID: def.ID, Msg: fmt.Sprintf("unknown rule kind %q", def.Kind)}
		}
		base.Kind = def.Kind
	}
	if def.Category != "" {
		base.Category = def.Category
	}
	if def.Description != "" {
		base.Description = def.Description
	}
	if def.Message != "" {
		base.Message = def.Message
	}
	if def.Script != "" {
		base.Script = def.Script
	}
	if def.Enabled != nil {
		base.Enabled = *def.Enabled
	}
	if def.Severity != "" {
		if strings.EqualFold(def.Severity, core.SeverityOff) {
			base.Enabled = false
		} else {
			sev, ok := core.ParseSeverity(def.Severity)
			if !ok {
				return &ConfigError{Source: path, RuleID: def.ID, Msg: fmt.Sprintf("invalid severity %q", def.Severity)}
			}
			base.Severity = sev
		}
	}
	for k, v := range def.Options {
		base.Options[k] = v
	}
	if def.MaxComplexity != nil {
		base.Options["max_complexity"] = *def.MaxComplexity
	}
	if def.MaxFunctionSize != nil {
		base.Options["max_function_size"] = *def.MaxFunctionSize
	}

	base.Origin = path
	m.add(base)
	return nil
}

func (m *merger) applyOverrides(o *Overrides) {
	var ids []string
	for id := range o.ruleIDs() {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		spec, ok := m.specs[id]
		if !ok {
			m.warnings = append(m.warnings, &UnknownRuleError{ID: id, Source: OriginConfig})
			continue
		}
		spec = spec.Clone()
		if o.EnabledRules[id] {
			spec.Enabled = true
		}
		if o.IsDisabled(id) {
			spec.Enabled = false
		}
		spec.Severity = o.GetSeverity(id, spec.Severity)
		for k, v := range o.RuleOptions[id] {
			spec.Options[k] = v
		}
		spec.Origin = OriginConfig
		m.specs[id] = spec
	}
}
