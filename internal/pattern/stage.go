package pattern

import (
	"context"
	"strings"
	"time"

	"github.com/vanguard-ai/vanguard/internal/redact"
	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// strongMatch is the confidence at which a tier-1 match (or anti-match)
// terminates routing on its own.
const strongMatch = 0.85

// Outcome is the pattern stage's result. Terminal outcomes carry a final
// verdict; non-terminal outcomes carry the provisional signal the router
// uses to decide escalation.
type Outcome struct {
	Verdict   verdict.Verdict
	Terminal  bool
	MaxPos    float64
	BestClass verdict.FailureClass
}

// Evaluate runs the compiled library over text. A pattern whose match takes
// longer than perPattern is logged and its result skipped (a match in
// progress is not interrupted); the ctx deadline is checked between patterns so a
// cancelled request stops at the next boundary. Go's regexp guarantees a
// single match is linear in len(text), which the guard has already capped.
func (l *Library) Evaluate(ctx context.Context, text string, perPattern time.Duration) Outcome {
	var (
		maxPos    float64
		maxNeg    float64
		bestClass = verdict.ClassNone
	)

	for _, p := range l.patterns {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		matched := p.re.MatchString(text)
		if elapsed := time.Since(start); elapsed > perPattern {
			redact.Logf("pattern %s exceeded per-pattern budget (%s > %s)", p.ID, elapsed, perPattern)
			continue
		}
		if !matched {
			continue
		}
		if p.Anti {
			if p.Confidence > maxNeg {
				maxNeg = p.Confidence
			}
			continue
		}
		if p.Confidence > maxPos {
			maxPos = p.Confidence
			bestClass = p.Class
		}
	}

	// Anti-match wins over a simultaneous strong positive: legitimate
	// citations must not be overridden by incidental keyword hits.
	if maxNeg >= strongMatch {
		return Outcome{
			Terminal: true,
			Verdict: verdict.Clean(1, verdict.MethodPatternAntimatch, maxNeg,
				"anti-pattern match outweighs suspicion"),
		}
	}

	if maxPos >= strongMatch {
		return Outcome{
			Terminal: true,
			MaxPos:   maxPos,
			Verdict: verdict.Verdict{
				Action:       verdict.ActionBlock,
				TierUsed:     1,
				Method:       verdict.MethodPatternStrong,
				FailureClass: bestClass,
				Confidence:   maxPos,
				Explanation:  "strong pattern match",
			},
		}
	}

	if maxPos == 0 && maxNeg == 0 && l.clear(text) {
		return Outcome{
			Terminal: true,
			Verdict:  verdict.Clean(1, verdict.MethodPatternClear, 0.90, "no suspicious markers"),
		}
	}

	return Outcome{
		MaxPos:    maxPos,
		BestClass: bestClass,
		Verdict: verdict.Verdict{
			Action:       verdict.ActionAllow,
			TierUsed:     1,
			Method:       verdict.MethodPatternProvisional,
			FailureClass: bestClass,
			Confidence:   maxPos,
			Explanation:  "no terminal pattern signal",
		},
	}
}

// clear reports whether text carries none of the suspicious tokens at all.
func (l *Library) clear(text string) bool {
	lc := strings.ToLower(text)
	for _, tok := range l.suspicious {
		if strings.Contains(lc, tok) {
			return false
		}
	}
	return true
}
