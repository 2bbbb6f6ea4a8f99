package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vanguard-ai/vanguard/internal/exemplar"
	"github.com/vanguard-ai/vanguard/internal/pattern"
	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// File is the on-disk policy document. Everything in it is optional;
// missing pieces fall back to built-in defaults.
type File struct {
	FailurePolicies map[string]ClassEntry `yaml:"failure_policies"`
	Thresholds      ThresholdsEntry       `yaml:"thresholds"`
	Tiers           TiersEntry            `yaml:"tiers"`
	Patterns        []pattern.Spec        `yaml:"patterns"`
}

// ClassEntry is one failure class's overrides plus its exemplar texts.
type ClassEntry struct {
	Severity  string   `yaml:"severity"`
	Action    string   `yaml:"action"`
	Threshold float64  `yaml:"threshold"`
	Reason    string   `yaml:"reason"`
	Examples  []string `yaml:"examples"`
}

type ThresholdsEntry struct {
	Security float64 `yaml:"security"`
	Content  float64 `yaml:"content"`
}

// TiersEntry enables or disables the advanced tiers. Pointers so "absent"
// is distinguishable from "false".
type TiersEntry struct {
	Tier2Enabled *bool `yaml:"tier2_enabled"`
	Tier3Enabled *bool `yaml:"tier3_enabled"`
}

// Loaded is the parsed and validated policy source.
type Loaded struct {
	Engine    *Engine
	Exemplars []exemplar.Exemplar // policy-sourced only; builtins are appended by the caller
	Patterns  []pattern.Spec      // policy-sourced only
	Tiers     TiersEntry
}

// LoadFile reads and validates the policy document at path. Any error is
// returned without side effects so a failed hot reload leaves the running
// snapshot untouched.
func LoadFile(path string, defaultSecurity, defaultContent float64) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data, defaultSecurity, defaultContent)
}

// Parse builds a Loaded policy from YAML bytes.
func Parse(data []byte, defaultSecurity, defaultContent float64) (*Loaded, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy yaml: %w", err)
	}

	if f.Thresholds.Security > 0 {
		defaultSecurity = f.Thresholds.Security
	}
	if f.Thresholds.Content > 0 {
		defaultContent = f.Thresholds.Content
	}

	eng := Defaults(defaultSecurity, defaultContent)
	var exemplars []exemplar.Exemplar

	for name, entry := range f.FailurePolicies {
		class := verdict.FailureClass(name)
		if !verdict.Known(class) {
			// The enumeration is closed at process start; an unknown class
			// is a typo or a version mismatch, never something to ignore.
			return nil, fmt.Errorf("policy references unknown failure class %q", name)
		}

		p := eng.classes[class]
		if entry.Severity != "" {
			sev, err := parseSeverity(entry.Severity)
			if err != nil {
				return nil, fmt.Errorf("class %s: %w", name, err)
			}
			p.Severity = sev
		}
		if entry.Action != "" {
			act, err := parseAction(entry.Action)
			if err != nil {
				return nil, fmt.Errorf("class %s: %w", name, err)
			}
			p.Action = act
		}
		if entry.Threshold != 0 {
			if entry.Threshold < 0 || entry.Threshold > 1 {
				return nil, fmt.Errorf("class %s: threshold %v outside [0, 1]", name, entry.Threshold)
			}
			p.Threshold = entry.Threshold
		}
		if entry.Reason != "" {
			p.Reason = entry.Reason
		}
		eng.classes[class] = p

		for _, text := range entry.Examples {
			if text == "" {
				continue
			}
			exemplars = append(exemplars, exemplar.Exemplar{
				Class:  class,
				Text:   text,
				Source: exemplar.SourcePolicy,
			})
		}
	}

	// Compile-check policy patterns now so a bad regex fails the load, not
	// the first request after publish.
	if len(f.Patterns) > 0 {
		if _, err := pattern.NewLibrary(f.Patterns); err != nil {
			return nil, fmt.Errorf("policy patterns: %w", err)
		}
	}

	return &Loaded{
		Engine:    eng,
		Exemplars: exemplars,
		Patterns:  f.Patterns,
		Tiers:     f.Tiers,
	}, nil
}

func parseSeverity(s string) (verdict.Severity, error) {
	switch verdict.Severity(s) {
	case verdict.SeverityCritical, verdict.SeverityHigh, verdict.SeverityMedium, verdict.SeverityLow, verdict.SeverityInfo:
		return verdict.Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

func parseAction(s string) (verdict.Action, error) {
	switch verdict.Action(s) {
	case verdict.ActionAllow, verdict.ActionWarn, verdict.ActionBlock:
		return verdict.Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}
