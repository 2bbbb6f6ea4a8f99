package router

import (
	"context"
	"time"

	"github.com/vanguard-ai/vanguard/internal/exemplar"
	"github.com/vanguard-ai/vanguard/internal/pattern"
	"github.com/vanguard-ai/vanguard/internal/reason"
	"github.com/vanguard-ai/vanguard/internal/redact"
	"github.com/vanguard-ai/vanguard/internal/snapshot"
	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// Minimum expected stage costs. The router never enters a stage when less
// than this remains of the pipeline budget; a stage that cannot finish is
// wasted work and a blown deadline.
const (
	tier2FloorCost = 100 * time.Millisecond
	tier3FloorCost = 1 * time.Second
)

// Bands are the confidence intervals driving escalation.
type Bands struct {
	GrayLow       float64 // tier-1 signal below this stays at tier 1
	GrayHigh      float64 // tier-1 signal at or above this is terminal
	Tier2Certain  float64 // tier-2 score at or above this is terminal
	EscalationLow float64 // tier-2 score at or above this (below certain) may go to tier 3
}

// Router escalates a payload through the tiers based on confidence bands
// and the remaining budget. It is polymorphic over the stages only through
// their outcome shapes, so tiers can be swapped or disabled independently.
type Router struct {
	bands      Bands
	perPattern time.Duration
	tier2      *exemplar.Stage
	tier3      *reason.Stage
	observe    func(stage string, d time.Duration)
}

// New wires the router. tier2 and tier3 may be nil when disabled; observe
// receives the wall-clock duration of each tier that ran and may be nil.
func New(bands Bands, perPattern time.Duration, tier2 *exemplar.Stage, tier3 *reason.Stage, observe func(stage string, d time.Duration)) *Router {
	if perPattern <= 0 {
		perPattern = 500 * time.Millisecond
	}
	return &Router{
		bands:      bands,
		perPattern: perPattern,
		tier2:      tier2,
		tier3:      tier3,
		observe:    observe,
	}
}

func (r *Router) observeStage(stage string, start time.Time) {
	if r.observe != nil {
		r.observe(stage, time.Since(start))
	}
}

// Route runs the tiers in order against one snapshot. patternText and
// vectorText are the guard's capped views of the payload.
func (r *Router) Route(ctx context.Context, snap *snapshot.Snapshot, patternText, vectorText string) verdict.Verdict {
	t1Start := time.Now()
	out1 := snap.Patterns.Evaluate(ctx, patternText, r.perPattern)
	r.observeStage("pattern", t1Start)
	if out1.Terminal {
		v := out1.Verdict
		if v.Method == verdict.MethodPatternStrong {
			v = snap.Policy.Apply(v)
		}
		return v
	}

	// Escalate when tier 1 saw nothing at all, or its best signal sits in
	// the gray band where a pattern hit is suggestive but not conclusive.
	gray := out1.MaxPos >= r.bands.GrayLow && out1.MaxPos < r.bands.GrayHigh
	if !(out1.MaxPos == 0 || gray) || !snap.Tier2Enabled || r.tier2 == nil || !withinBudget(ctx, tier2FloorCost) {
		return r.resolveProvisional(snap, out1)
	}

	t2Start := time.Now()
	out2 := r.tier2.Evaluate(ctx, vectorText, snap.Index, snap.Policy)
	r.observeStage("semantic", t2Start)
	if out2.Err != nil && !out2.TimedOut {
		// Encoder unavailable or index mismatch: the stage is skipped and
		// the tier-1 provisional verdict stands.
		redact.Logf("router: tier 2 skipped: %v", out2.Err)
		return r.resolveProvisional(snap, out1)
	}

	if out2.Triggered {
		if out2.Score >= r.bands.Tier2Certain {
			return out2.Verdict
		}
		if out2.Score >= r.bands.EscalationLow &&
			snap.Tier3Enabled && r.tier3 != nil && withinBudget(ctx, tier3FloorCost) {
			hints := []string{
				"tier2 class " + string(out2.Class),
				"tier1 class " + string(out1.BestClass),
			}
			t3Start := time.Now()
			v := r.tier3.Evaluate(ctx, vectorText, hints, out2.Verdict, snap.Policy)
			r.observeStage("reason", t3Start)
			return v
		}
		return out2.Verdict
	}

	// Semantic-clear allows and synthetic timeout allows are returned
	// as-is; the method field keeps them distinguishable in logs.
	return out2.Verdict
}

// resolveProvisional turns tier 1's non-terminal signal into a final
// verdict when no later stage can run. A block at sub-strong confidence is
// downgraded to allow: a weak pattern hit alone must not block traffic.
func (r *Router) resolveProvisional(snap *snapshot.Snapshot, out pattern.Outcome) verdict.Verdict {
	v := out.Verdict
	if v.FailureClass == verdict.ClassNone || v.FailureClass == "" {
		v.FailureClass = verdict.ClassNone
		v.Action = verdict.ActionAllow
		v.Severity = verdict.SeverityInfo
		return v
	}
	v.Action = snap.Policy.Action(v.FailureClass)
	v.Severity = snap.Policy.Severity(v.FailureClass)
	if v.Action == verdict.ActionBlock && v.Confidence < 0.85 {
		v.Action = verdict.ActionAllow
	}
	return v
}

func withinBudget(ctx context.Context, floor time.Duration) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) >= floor
}
