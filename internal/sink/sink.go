package sink

import (
	"context"
	"time"

	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// Event is one recorded verdict. Previews are already redacted/truncated by
// the time an event is built; sinks never see raw payloads.
type Event struct {
	Timestamp     time.Time       `json:"timestamp"`
	RequestID     string          `json:"request_id"`
	PolicyVersion string          `json:"policy_version"`
	Verdict       verdict.Verdict `json:"verdict"`
	PromptPreview string          `json:"prompt_preview,omitempty"`
}

// Sink consumes verdict events (stdout, file, webhook, etc.).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}
