package exemplar

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// Resolver is the slice of the policy engine the exemplar stage needs:
// per-class thresholds for triggering and severity/action for resolution.
type Resolver interface {
	Threshold(class verdict.FailureClass) float64
	Severity(class verdict.FailureClass) verdict.Severity
	Action(class verdict.FailureClass) verdict.Action
}

// Outcome is the exemplar stage's result. Triggered outcomes carry the
// winning class and score; the router decides whether the score terminates
// or escalates. TimedOut and Err mark synthetic results.
type Outcome struct {
	Verdict   verdict.Verdict
	Triggered bool
	Class     verdict.FailureClass
	Score     float64
	TimedOut  bool
	Err       error
}

// Stage is tier 2: encode the payload and search the exemplar index.
// Encoding is CPU-heavy, so concurrent encodes are bounded by a semaphore;
// unbounded fan-in thrashes every request's latency at once.
type Stage struct {
	enc           Encoder
	sem           *semaphore.Weighted
	encodeTimeout time.Duration
}

// NewStage wires the (memoized) encoder with inflight permits and the
// encode budget.
func NewStage(enc Encoder, inflight int, encodeTimeout time.Duration) *Stage {
	if inflight <= 0 {
		inflight = 1
	}
	if encodeTimeout <= 0 {
		encodeTimeout = 3 * time.Second
	}
	return &Stage{
		enc:           enc,
		sem:           semaphore.NewWeighted(int64(inflight)),
		encodeTimeout: encodeTimeout,
	}
}

// Evaluate encodes text and scores it against idx. On encode timeout the
// stage yields a synthetic allow tagged semantic_timeout so logs can tell
// it apart from a clean pass; encoder failure is reported as Err so the
// router can treat the stage as skipped.
func (s *Stage) Evaluate(ctx context.Context, text string, idx *Index, pol Resolver) Outcome {
	encCtx, cancel := context.WithTimeout(ctx, s.encodeTimeout)
	defer cancel()

	if err := s.sem.Acquire(encCtx, 1); err != nil {
		return s.timeoutOutcome(err)
	}
	query, err := s.enc.Encode(encCtx, text)
	s.sem.Release(1)
	if err != nil {
		if encCtx.Err() != nil {
			return s.timeoutOutcome(err)
		}
		return Outcome{Err: err}
	}

	scores, err := idx.MaxScores(UnitNormalize(query))
	if err != nil {
		// Dimension mismatch at query time is a programming or deployment
		// error, not a property of the payload.
		return Outcome{Err: err}
	}

	type hit struct {
		class verdict.FailureClass
		score float64
	}
	var (
		hits     []hit
		maxScore float64
	)
	for class, score := range scores {
		if score > maxScore {
			maxScore = score
		}
		if score >= pol.Threshold(class) {
			hits = append(hits, hit{class: class, score: score})
		}
	}

	if len(hits) == 0 {
		conf := 1 - maxScore
		if conf < 0 {
			conf = 0
		}
		return Outcome{
			Score:   maxScore,
			Verdict: verdict.Clean(2, verdict.MethodSemanticClear, conf, "no exemplar class above threshold"),
		}
	}

	// Resolution when several classes trigger: highest severity, then
	// highest score, then lexicographic class id for determinism.
	sort.Slice(hits, func(i, j int) bool {
		si, sj := pol.Severity(hits[i].class).Rank(), pol.Severity(hits[j].class).Rank()
		if si != sj {
			return si > sj
		}
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].class < hits[j].class
	})
	best := hits[0]

	return Outcome{
		Triggered: true,
		Class:     best.class,
		Score:     best.score,
		Verdict: verdict.Verdict{
			Action:       pol.Action(best.class),
			TierUsed:     2,
			Method:       verdict.MethodSemantic,
			FailureClass: best.class,
			Severity:     pol.Severity(best.class),
			Confidence:   best.score,
			Explanation:  "exemplar similarity above class threshold",
		},
	}
}

func (s *Stage) timeoutOutcome(err error) Outcome {
	return Outcome{
		TimedOut: true,
		Err:      err,
		Verdict:  verdict.Clean(2, verdict.MethodSemanticTimeout, 0.0, "embedding encode exceeded budget"),
	}
}
