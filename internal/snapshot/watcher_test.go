package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/vanguard-ai/vanguard/internal/encoder"
	"github.com/vanguard-ai/vanguard/internal/verdict"
)

func TestWatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "")

	st, err := NewStore(context.Background(), Options{
		PolicyPath:        path,
		SecurityThreshold: 0.65,
		ContentThreshold:  0.70,
	}, encoder.NewFake(64))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := st.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	writePolicy(t, dir, `
failure_policies:
  overconfidence:
    action: block
`)

	// The watcher debounces for 500ms; give it a few seconds.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st.Current().Policy.Action(verdict.ClassOverconfidence) == verdict.ActionBlock {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("watcher did not pick up the policy change")
}

func TestWatchWithoutPolicyPathIsNoop(t *testing.T) {
	st, err := NewStore(context.Background(), Options{
		SecurityThreshold: 0.65,
		ContentThreshold:  0.70,
	}, encoder.NewFake(64))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	stop, err := st.Watch(context.Background())
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	stop()
}
