package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vanguard-ai/vanguard/internal/metrics"
	"github.com/vanguard-ai/vanguard/internal/redact"
	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// SinkStats are per-sink delivery counters.
type SinkStats struct {
	Delivered uint64
	Failed    uint64
	Dropped   uint64
}

// route is one sink with its own bounded queue and worker. Queues are per
// sink so a slow webhook cannot starve the file sink: each sink drops its
// own overflow and nobody else's.
type route struct {
	sink  Sink
	queue chan *Event

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Emitter fans verdict events out to sinks. Recording is best-effort: a
// full queue drops the event rather than blocking the verdict path, and
// every drop is visible on the metrics surface.
type Emitter struct {
	routes          []*route
	actionableOnly  bool
	mets            *metrics.Metrics
	shutdownTimeout time.Duration

	mu     sync.RWMutex // guards closed vs. in-flight sends
	closed bool
	wg     sync.WaitGroup
}

// EmitterConfig controls queue sizing and the recording policy.
type EmitterConfig struct {
	QueueSize       int
	Workers         int // workers per sink
	ShutdownTimeout time.Duration
	// ActionableOnly drops allow verdicts: audit sinks usually only care
	// about warns and blocks, and allows are the overwhelming majority of
	// traffic.
	ActionableOnly bool
}

// NewEmitter starts one queue and worker set per sink. mets may be nil;
// per-sink counters are kept either way and exposed via Stats.
func NewEmitter(cfg EmitterConfig, sinks []Sink, mets *metrics.Metrics) *Emitter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	workerCount := cfg.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 2 * time.Second
	}

	em := &Emitter{
		actionableOnly:  cfg.ActionableOnly,
		mets:            mets,
		shutdownTimeout: shutdownTimeout,
	}
	for _, s := range sinks {
		rt := &route{
			sink:  s,
			queue: make(chan *Event, queueSize),
		}
		em.routes = append(em.routes, rt)
		for i := 0; i < workerCount; i++ {
			em.wg.Add(1)
			go em.run(rt)
		}
	}
	return em
}

// Emit enqueues the event on every sink without blocking the verdict path.
func (e *Emitter) Emit(ctx context.Context, ev *Event) {
	if e == nil || ev == nil {
		return
	}
	if e.actionableOnly && ev.Verdict.Action == verdict.ActionAllow {
		return
	}
	// Sinks leave the process; whatever preview the caller built goes
	// through redaction once more here so no sink can ever see raw PII.
	ev.PromptPreview = redact.Preview(ev.PromptPreview)

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rt := range e.routes {
		if e.closed {
			e.drop(rt)
			continue
		}
		select {
		case rt.queue <- ev:
		default:
			e.drop(rt)
		}
	}
}

func (e *Emitter) drop(rt *route) {
	rt.dropped.Add(1)
	if e.mets != nil {
		e.mets.SinkDropped.WithLabelValues(rt.sink.Name()).Inc()
	}
}

// Close stops accepting new events and waits briefly for the queues to
// drain before closing the sinks.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, rt := range e.routes {
		close(rt.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	waitCtx := ctx
	if waitCtx == nil {
		waitCtx = context.Background()
	}
	var cancel context.CancelFunc
	waitCtx, cancel = context.WithTimeout(waitCtx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
	}

	for _, rt := range e.routes {
		if err := rt.sink.Close(waitCtx); err != nil {
			redact.Logf("sink: %s close error: %v", rt.sink.Name(), err)
		}
	}
}

// Stats returns the per-sink delivery counters, keyed by sink name.
func (e *Emitter) Stats() map[string]SinkStats {
	if e == nil {
		return nil
	}
	out := make(map[string]SinkStats, len(e.routes))
	for _, rt := range e.routes {
		out[rt.sink.Name()] = SinkStats{
			Delivered: rt.delivered.Load(),
			Failed:    rt.failed.Load(),
			Dropped:   rt.dropped.Load(),
		}
	}
	return out
}

func (e *Emitter) run(rt *route) {
	defer e.wg.Done()
	for ev := range rt.queue {
		if err := rt.sink.Deliver(context.Background(), ev); err != nil {
			redact.Logf("sink: %s failed: %v", rt.sink.Name(), err)
			rt.failed.Add(1)
			if e.mets != nil {
				e.mets.SinkEvents.WithLabelValues(rt.sink.Name(), "failed").Inc()
			}
			continue
		}
		rt.delivered.Add(1)
		if e.mets != nil {
			e.mets.SinkEvents.WithLabelValues(rt.sink.Name(), "delivered").Inc()
		}
	}
}
