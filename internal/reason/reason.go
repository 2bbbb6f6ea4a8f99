package reason

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vanguard-ai/vanguard/internal/policy"
	"github.com/vanguard-ai/vanguard/internal/redact"
	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// conservativeFloor downgrades low-confidence blocks from the reasoner to
// warnings. The reasoner is the only non-deterministic stage; without the
// floor it would introduce high-variance blocks.
const conservativeFloor = 0.70

// Finding is the reasoner's structured answer.
type Finding struct {
	Class      verdict.FailureClass `json:"class"`
	Action     verdict.Action       `json:"action"`
	Confidence float64              `json:"confidence"`
	Rationale  string               `json:"rationale"`
}

// Reasoner deliberates over a payload. Implementations must return before
// the ctx deadline and must report parse failures as errors, never as
// fabricated findings.
type Reasoner interface {
	Deliberate(ctx context.Context, text string, hints []string) (Finding, error)
}

// Stage is tier 3. The external reasoner is the most expensive dependency
// in the pipeline, so inflight calls are tightly bounded.
type Stage struct {
	reasoner Reasoner
	sem      *semaphore.Weighted
	budget   time.Duration
}

// NewStage wires the reasoner with inflight permits and the call budget.
func NewStage(r Reasoner, inflight int, budget time.Duration) *Stage {
	if inflight <= 0 {
		inflight = 4
	}
	if budget <= 0 {
		budget = 15 * time.Second
	}
	return &Stage{
		reasoner: r,
		sem:      semaphore.NewWeighted(int64(inflight)),
		budget:   budget,
	}
}

// Evaluate asks the reasoner about text and converts its finding into a
// verdict. The reasoner is advice, not authority: the policy engine decides
// the action for the reported class, and the conservative floor applies on
// top. On timeout, parse failure, or unavailability the tentative verdict
// carried in from the earlier tier is returned; reasoner failure never
// fabricates a block.
func (s *Stage) Evaluate(ctx context.Context, text string, hints []string, tentative verdict.Verdict, pol *policy.Engine) verdict.Verdict {
	callCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	if err := s.sem.Acquire(callCtx, 1); err != nil {
		return s.fallback(tentative, "reasoner queue full or budget exhausted")
	}
	finding, err := s.reasoner.Deliberate(callCtx, text, hints)
	s.sem.Release(1)
	if err != nil {
		redact.Logf("reason: deliberation failed, falling back to tier-%d verdict: %v", tentative.TierUsed, err)
		return s.fallback(tentative, "reasoner unavailable or unparseable")
	}
	if !verdict.Known(finding.Class) {
		redact.Logf("reason: reasoner reported unknown class %q, falling back", finding.Class)
		return s.fallback(tentative, "reasoner reported unknown class")
	}

	if finding.Class == verdict.ClassNone {
		return verdict.Clean(3, verdict.MethodReason, finding.Confidence, finding.Rationale)
	}

	v := verdict.Verdict{
		Action:       pol.Action(finding.Class),
		TierUsed:     3,
		Method:       verdict.MethodReason,
		FailureClass: finding.Class,
		Severity:     pol.Severity(finding.Class),
		Confidence:   finding.Confidence,
		Explanation:  finding.Rationale,
	}
	if v.Action == verdict.ActionBlock && v.Confidence < conservativeFloor {
		v.Action = verdict.ActionWarn
	}
	return v
}

// fallback stamps the tentative verdict as the tier-3 outcome so the method
// field records that the reasoner ran and failed.
func (s *Stage) fallback(tentative verdict.Verdict, why string) verdict.Verdict {
	v := tentative
	v.TierUsed = 3
	v.Method = verdict.MethodReasonFallback
	if v.Explanation != "" {
		v.Explanation = v.Explanation + "; " + why
	} else {
		v.Explanation = why
	}
	return v
}
