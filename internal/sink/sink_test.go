package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vanguard-ai/vanguard/internal/verdict"
)

func testEvent(id string) *Event {
	return &Event{
		Timestamp:     time.Now().UTC(),
		RequestID:     id,
		PolicyVersion: "v1",
		Verdict: verdict.Verdict{
			Action:       verdict.ActionBlock,
			TierUsed:     1,
			Method:       verdict.MethodPatternStrong,
			FailureClass: verdict.ClassPromptInjection,
			Severity:     verdict.SeverityCritical,
			Confidence:   0.95,
		},
	}
}

func allowEvent(id string) *Event {
	ev := testEvent(id)
	ev.Verdict.Action = verdict.ActionAllow
	ev.Verdict.FailureClass = verdict.ClassNone
	return ev
}

func TestFileSinkWritesJSONL(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "verdicts.jsonl")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}

	if err := sink.Deliver(context.Background(), testEvent("req-1")); err != nil {
		t.Fatalf("deliver 1: %v", err)
	}
	if err := sink.Deliver(context.Background(), testEvent("req-2")); err != nil {
		t.Fatalf("deliver 2: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal jsonl line: %v", err)
	}
	if decoded.RequestID != "req-1" {
		t.Fatalf("expected request_id req-1, got %s", decoded.RequestID)
	}
	if decoded.Verdict.FailureClass != verdict.ClassPromptInjection {
		t.Fatalf("verdict not round-tripped: %+v", decoded.Verdict)
	}
}

func TestFileSinkRotatesAtSizeCap(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "verdicts.jsonl")

	// Cap small enough that a handful of events force a rotation.
	sink, err := NewRotatingFileSink(path, 600)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := sink.Deliver(context.Background(), testEvent("req")); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	rotated, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("expected rotated file: %v", err)
	}
	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if len(rotated) == 0 || len(current) == 0 {
		t.Fatalf("both files should hold events: rotated=%d current=%d", len(rotated), len(current))
	}
	if int64(len(current)) > 600 {
		t.Fatalf("current file exceeds cap: %d", len(current))
	}
	// Every surviving line is intact JSON; rotation must never split an event.
	for _, line := range strings.Split(strings.TrimSpace(string(current)), "\n") {
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("rotation corrupted a line: %v", err)
		}
	}
}

func TestWebhookSinkDeliversWithHeaders(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
		action   string
		class    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		action = r.Header.Get("X-Vanguard-Action")
		class = r.Header.Get("X-Vanguard-Class")
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			received = append(received, ev)
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	sink, err := NewWebhookSink(srv.URL, map[string]string{"X-Test": "1"}, time.Second)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), testEvent("req-9")); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].RequestID != "req-9" {
		t.Fatalf("event not received: %+v", received)
	}
	if action != "block" || class != "prompt_injection" {
		t.Fatalf("verdict headers missing: action=%q class=%q", action, class)
	}
}

func TestWebhookSinkDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("malformed"))
	}))
	t.Cleanup(srv.Close)

	sink, err := NewWebhookSink(srv.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	err = sink.Deliver(context.Background(), testEvent("req-1"))
	if err == nil {
		t.Fatal("expected error for 4xx")
	}
	if !strings.Contains(err.Error(), "status") {
		t.Fatalf("error should mention status, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls)
	}
}

func TestWebhookSinkRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	sink, err := NewWebhookSink(srv.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), testEvent("req-1")); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

// blockingSink holds deliveries until wait is closed.
type blockingSink struct {
	wait chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }
func (s *blockingSink) Deliver(ctx context.Context, ev *Event) error {
	<-s.wait
	return nil
}
func (s *blockingSink) Close(context.Context) error { return nil }

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	wait := make(chan struct{})
	blocking := &blockingSink{wait: wait}
	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1, ShutdownTimeout: time.Second}, []Sink{blocking}, nil)

	em.Emit(context.Background(), testEvent("r1"))
	em.Emit(context.Background(), testEvent("r2"))
	em.Emit(context.Background(), testEvent("r3"))

	if em.Stats()["blocking"].Dropped == 0 {
		t.Fatalf("expected dropped events when queue is full: %+v", em.Stats())
	}

	close(wait)
	em.Close(context.Background())
}

func TestEmitterSlowSinkDoesNotStarveOthers(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "verdicts.jsonl")
	fs, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	wait := make(chan struct{})
	blocking := &blockingSink{wait: wait}

	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1, ShutdownTimeout: time.Second}, []Sink{blocking, fs}, nil)
	for i := 0; i < 5; i++ {
		em.Emit(context.Background(), testEvent("req"))
	}

	// The file sink has its own queue; the wedged sink must not block it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if em.Stats()[fs.Name()].Delivered == 5 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := em.Stats()[fs.Name()].Delivered; got != 5 {
		t.Fatalf("file sink starved behind wedged sink: delivered=%d", got)
	}
	if em.Stats()["blocking"].Dropped == 0 {
		t.Fatal("wedged sink should be dropping its own overflow")
	}

	close(wait)
	em.Close(context.Background())
}

func TestEmitterActionableOnlySkipsAllows(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "verdicts.jsonl")
	fs, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	em := NewEmitter(EmitterConfig{QueueSize: 10, ActionableOnly: true, ShutdownTimeout: time.Second}, []Sink{fs}, nil)

	em.Emit(context.Background(), allowEvent("a1"))
	em.Emit(context.Background(), allowEvent("a2"))
	em.Emit(context.Background(), testEvent("b1"))
	em.Close(context.Background())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the block event, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "b1") {
		t.Fatalf("wrong event recorded: %s", lines[0])
	}
}

func TestEmitterRedactsPreviews(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "verdicts.jsonl")
	fs, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	em := NewEmitter(EmitterConfig{QueueSize: 10, ShutdownTimeout: time.Second}, []Sink{fs}, nil)

	ev := testEvent("r1")
	ev.PromptPreview = "reach me at jane.doe@example.com about this"
	em.Emit(context.Background(), ev)
	em.Close(context.Background())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(data), "jane.doe@example.com") {
		t.Fatalf("preview not redacted before delivery: %s", data)
	}
}

func TestEmitterDeliversAndCloses(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "verdicts.jsonl")
	fs, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}

	em := NewEmitter(EmitterConfig{QueueSize: 10, Workers: 2, ShutdownTimeout: time.Second}, []Sink{fs}, nil)
	for i := 0; i < 5; i++ {
		em.Emit(context.Background(), testEvent("req"))
	}
	em.Close(context.Background())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 delivered events, got %d", len(lines))
	}
	if got := em.Stats()[fs.Name()].Delivered; got != 5 {
		t.Fatalf("expected 5 delivered, got %d", got)
	}

	// Emitting after close drops without panicking.
	em.Emit(context.Background(), testEvent("late"))
	if em.Stats()[fs.Name()].Dropped == 0 {
		t.Fatal("post-close emit must be counted as dropped")
	}
}
