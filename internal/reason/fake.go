package reason

import (
	"context"
	"time"
)

// FakeReasoner returns a scripted finding. Used in tests and for running
// the pipeline without an external model.
type FakeReasoner struct {
	Finding Finding
	Err     error
	Delay   time.Duration
}

// NewFake returns a reasoner that always answers with f.
func NewFake(f Finding) *FakeReasoner {
	return &FakeReasoner{Finding: f}
}

func (r *FakeReasoner) Deliberate(ctx context.Context, text string, hints []string) (Finding, error) {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return Finding{}, ctx.Err()
		}
	}
	if r.Err != nil {
		return Finding{}, r.Err
	}
	return r.Finding, nil
}
