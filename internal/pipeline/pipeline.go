package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/vanguard-ai/vanguard/internal/cache"
	"github.com/vanguard-ai/vanguard/internal/guard"
	"github.com/vanguard-ai/vanguard/internal/metrics"
	"github.com/vanguard-ai/vanguard/internal/redact"
	"github.com/vanguard-ai/vanguard/internal/router"
	"github.com/vanguard-ai/vanguard/internal/sink"
	"github.com/vanguard-ai/vanguard/internal/snapshot"
	"github.com/vanguard-ai/vanguard/internal/telemetry"
	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// Request is one payload to inspect.
type Request struct {
	Text          string
	Context       map[string]string
	CorrelationID string
}

// Options bounds the pipeline. HardBudget is the request deadline every
// stage inherits; SoftBudget is the latency target, and exceeding it is
// reported, not enforced, so tier 3 keeps its full call budget.
type Options struct {
	Limits       guard.Limits
	SoftBudget   time.Duration
	HardBudget   time.Duration
	PreviewLevel string // metadata | redacted | full
	HealthWindow int
}

// Pipeline is the public entry point: guard, cache, router, accounting.
// It always returns a verdict within the total budget; errors become
// conservative verdicts, never panics or unbounded waits.
type Pipeline struct {
	store     *snapshot.Store
	router    *router.Router
	decisions *cache.Decision
	opts      Options

	metrics *metrics.Metrics
	otel    *telemetry.Provider
	emitter *sink.Emitter
	health  *health
}

// New assembles the pipeline. metrics and otel may not be nil; emitter may.
func New(store *snapshot.Store, rt *router.Router, decisions *cache.Decision, m *metrics.Metrics, otel *telemetry.Provider, emitter *sink.Emitter, opts Options) *Pipeline {
	if opts.SoftBudget <= 0 {
		opts.SoftBudget = 5 * time.Second
	}
	if opts.HardBudget <= 0 {
		opts.HardBudget = 15 * time.Second
	}
	if opts.PreviewLevel == "" {
		opts.PreviewLevel = "metadata"
	}
	return &Pipeline{
		store:     store,
		router:    rt,
		decisions: decisions,
		opts:      opts,
		metrics:   m,
		otel:      otel,
		emitter:   emitter,
		health:    newHealth(opts.HealthWindow),
	}
}

// Evaluate inspects one payload and returns its verdict. The snapshot is
// captured once here; every stage of this request sees the same patterns,
// index and policy even if a reload publishes mid-flight.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (v verdict.Verdict) {
	start := time.Now()
	snap := p.store.Current()

	// A programming error must fail this request, not the worker.
	defer func() {
		if r := recover(); r != nil {
			redact.Logf("pipeline: recovered from panic: %v", r)
			v = verdict.Verdict{
				Action:       verdict.ActionBlock,
				TierUsed:     1,
				Method:       verdict.MethodInternalError,
				FailureClass: verdict.ClassPathological,
				Severity:     verdict.SeverityMedium,
				Confidence:   0.50,
				Explanation:  "internal error while evaluating",
			}
			p.finalize(&v, req, snap.Version, start, false)
		}
	}()

	// The hard budget is the deadline the stages actually run against;
	// stage budgets are clipped to what remains of it via context
	// inheritance. The soft budget is only a target, checked after the fact.
	ctx, cancel := context.WithDeadline(ctx, start.Add(p.opts.HardBudget))
	defer cancel()

	guardStart := time.Now()
	g := guard.Inspect(req.Text, p.opts.Limits)
	p.observeStage("guard", time.Since(guardStart))
	if g.Verdict != nil {
		v = *g.Verdict
		p.finalize(&v, req, snap.Version, start, false)
		return v
	}

	key := cache.Key(g.Normalized, snap.Version, snap.IndexHash())
	if cached, ok := p.decisions.Get(key); ok {
		p.metrics.CacheHits.Inc()
		v = cached
		p.finalize(&v, req, snap.Version, start, true)
		return v
	}
	p.metrics.CacheMisses.Inc()

	v = p.router.Route(ctx, snap, g.PatternText, g.VectorText)

	if elapsed := time.Since(start); elapsed > p.opts.SoftBudget {
		p.metrics.Timeouts.WithLabelValues("soft").Inc()
		redact.Logf("pipeline: soft budget exceeded (%s > %s) method=%s tier=%d", elapsed, p.opts.SoftBudget, v.Method, v.TierUsed)
	}

	if ctx.Err() != nil {
		// Budget exhausted or caller cancelled: no partial verdict leaves
		// the pipeline, only the conservative admission-control default.
		p.metrics.Timeouts.WithLabelValues("total").Inc()
		v = verdict.Verdict{
			Action:       verdict.ActionBlock,
			TierUsed:     clampTier(v.TierUsed),
			Method:       verdict.MethodBudgetExhausted,
			FailureClass: verdict.ClassPathological,
			Severity:     verdict.SeverityMedium,
			Confidence:   0.50,
			Explanation:  "pipeline budget exhausted before a verdict",
		}
		p.finalize(&v, req, snap.Version, start, false)
		return v
	}

	p.finalize(&v, req, snap.Version, start, false)
	// Cache after finalize so the stored verdict carries its processing time.
	p.decisions.Put(key, v)
	return v
}

// Health reports the rolling tier distribution.
func (p *Pipeline) Health() HealthReport {
	return p.health.report()
}

// Reload rebuilds and publishes a new snapshot. In-flight requests finish
// against the one they captured.
func (p *Pipeline) Reload(ctx context.Context) error {
	return p.store.Rebuild(ctx)
}

// SnapshotVersion returns the currently published policy version.
func (p *Pipeline) SnapshotVersion() string {
	return p.store.Current().Version
}

func (p *Pipeline) finalize(v *verdict.Verdict, req Request, policyVersion string, start time.Time, cacheHit bool) {
	if !cacheHit {
		// Cached verdicts keep the processing time of the original
		// computation.
		v.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	}
	if v.TierUsed < 1 || v.TierUsed > 3 {
		v.TierUsed = 1
	}

	p.health.observe(v.TierUsed)
	p.metrics.Verdicts.WithLabelValues(string(v.Action), string(v.FailureClass), strconv.Itoa(v.TierUsed)).Inc()
	if v.Method == verdict.MethodSemanticTimeout {
		p.metrics.Timeouts.WithLabelValues("semantic").Inc()
	}
	p.otel.RecordVerdict(string(v.Action), string(v.FailureClass), v.Method, v.TierUsed, v.ProcessingTimeMs, cacheHit)

	if p.emitter != nil {
		p.emitter.Emit(context.Background(), &sink.Event{
			Timestamp:     time.Now().UTC(),
			RequestID:     req.CorrelationID,
			PolicyVersion: policyVersion,
			Verdict:       *v,
			PromptPreview: p.preview(req.Text),
		})
	}
}

// observeStage feeds both the scrape-side histogram and the OTLP push side.
// The guard is observed here; the router reports pattern/semantic/reason
// through the observer it was constructed with.
func (p *Pipeline) observeStage(stage string, d time.Duration) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	p.otel.RecordStage(stage, float64(d.Milliseconds()))
}

func (p *Pipeline) preview(text string) string {
	switch p.opts.PreviewLevel {
	case "full":
		return truncate(text, 200)
	case "redacted":
		return truncate(redact.Preview(text), 200)
	default: // metadata
		return ""
	}
}

func clampTier(tier int) int {
	if tier < 1 || tier > 3 {
		return 1
	}
	return tier
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
