package policy

import (
	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// ClassPolicy is the declarative handling for one failure class.
type ClassPolicy struct {
	Severity  verdict.Severity
	Action    verdict.Action
	Threshold float64 // tier-2 similarity threshold; 0 means use the group default
	Reason    string
}

// Engine maps failure classes to enforcement. It has the final word on the
// action: stages propose, policy disposes. Classes map only to actions,
// never to other classes, so resolution can never cycle.
type Engine struct {
	classes           map[verdict.FailureClass]ClassPolicy
	securityThreshold float64
	contentThreshold  float64
}

// securityClasses get the lower (stricter) default threshold at tier 2.
var securityClasses = map[verdict.FailureClass]bool{
	verdict.ClassPromptInjection:  true,
	verdict.ClassSQLInjection:     true,
	verdict.ClassXSS:              true,
	verdict.ClassPathTraversal:    true,
	verdict.ClassCommandInjection: true,
	verdict.ClassPathological:     true,
}

// Defaults returns the built-in policy table.
func Defaults(securityThreshold, contentThreshold float64) *Engine {
	if securityThreshold <= 0 {
		securityThreshold = 0.65
	}
	if contentThreshold <= 0 {
		contentThreshold = 0.70
	}

	classes := map[verdict.FailureClass]ClassPolicy{
		verdict.ClassPromptInjection:   {Severity: verdict.SeverityCritical, Action: verdict.ActionBlock, Reason: "attempt to override system instructions"},
		verdict.ClassToxicity:          {Severity: verdict.SeverityCritical, Action: verdict.ActionBlock, Reason: "abusive or harmful content"},
		verdict.ClassPathTraversal:     {Severity: verdict.SeverityCritical, Action: verdict.ActionBlock, Reason: "filesystem escape attempt"},
		verdict.ClassCommandInjection:  {Severity: verdict.SeverityCritical, Action: verdict.ActionBlock, Reason: "shell command smuggling"},
		verdict.ClassFabricatedFact:    {Severity: verdict.SeverityHigh, Action: verdict.ActionBlock, Reason: "verifiably false claim stated as fact"},
		verdict.ClassFabricatedConcept: {Severity: verdict.SeverityHigh, Action: verdict.ActionBlock, Reason: "invented term or concept"},
		verdict.ClassSQLInjection:      {Severity: verdict.SeverityHigh, Action: verdict.ActionBlock, Reason: "SQL injection payload"},
		verdict.ClassXSS:               {Severity: verdict.SeverityHigh, Action: verdict.ActionBlock, Reason: "script injection payload"},
		verdict.ClassBias:              {Severity: verdict.SeverityHigh, Action: verdict.ActionBlock, Reason: "prejudiced generalization"},
		verdict.ClassMissingGrounding:  {Severity: verdict.SeverityMedium, Action: verdict.ActionWarn, Reason: "claim lacks sources"},
		verdict.ClassOverconfidence:    {Severity: verdict.SeverityMedium, Action: verdict.ActionWarn, Reason: "certainty without justification"},
		verdict.ClassDomainMismatch:    {Severity: verdict.SeverityLow, Action: verdict.ActionWarn, Reason: "answer drifts off-domain"},
		verdict.ClassPathological:      {Severity: verdict.SeverityHigh, Action: verdict.ActionBlock, Reason: "input crafted to waste compute"},
		verdict.ClassNone:              {Severity: verdict.SeverityInfo, Action: verdict.ActionAllow, Reason: "no failure detected"},
	}

	return &Engine{
		classes:           classes,
		securityThreshold: securityThreshold,
		contentThreshold:  contentThreshold,
	}
}

// Severity returns the configured severity for class.
func (e *Engine) Severity(class verdict.FailureClass) verdict.Severity {
	if p, ok := e.classes[class]; ok {
		return p.Severity
	}
	return verdict.SeverityInfo
}

// Action returns the configured action for class.
func (e *Engine) Action(class verdict.FailureClass) verdict.Action {
	if p, ok := e.classes[class]; ok {
		return p.Action
	}
	return verdict.ActionAllow
}

// Threshold returns the tier-2 similarity threshold for class: the per-class
// override when set, otherwise the security or content group default.
func (e *Engine) Threshold(class verdict.FailureClass) float64 {
	if p, ok := e.classes[class]; ok && p.Threshold > 0 {
		return p.Threshold
	}
	if securityClasses[class] {
		return e.securityThreshold
	}
	return e.contentThreshold
}

// Reason returns the human-readable rationale for class.
func (e *Engine) Reason(class verdict.FailureClass) string {
	if p, ok := e.classes[class]; ok {
		return p.Reason
	}
	return ""
}

// Apply enforces the table over a stage's proposed verdict: the class keeps
// whatever the stage decided, the action and severity come from policy.
// A verdict with no failure class always allows.
func (e *Engine) Apply(v verdict.Verdict) verdict.Verdict {
	if v.FailureClass == verdict.ClassNone || v.FailureClass == "" {
		v.FailureClass = verdict.ClassNone
		v.Action = verdict.ActionAllow
		v.Severity = verdict.SeverityInfo
		return v
	}
	v.Action = e.Action(v.FailureClass)
	v.Severity = e.Severity(v.FailureClass)
	return v
}
