package snapshot

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vanguard-ai/vanguard/internal/redact"
)

// Watch reloads the snapshot when the policy file changes on disk. Events
// are debounced because editors and config management tools emit bursts of
// writes for a single save. Returns a stop function; when watching cannot
// be established the store still works via manual reload.
func (s *Store) Watch(ctx context.Context) (stop func(), err error) {
	if s.opts.PolicyPath == "" {
		return func() {}, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: most tools replace the file by rename, which
	// drops a watch placed on the file itself.
	dir := filepath.Dir(s.opts.PolicyPath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var debounce *time.Timer
		var debounceC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.opts.PolicyPath) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(500 * time.Millisecond)
					debounceC = debounce.C
				} else {
					debounce.Reset(500 * time.Millisecond)
				}
			case <-debounceC:
				debounce = nil
				debounceC = nil
				if err := s.Rebuild(ctx); err != nil {
					redact.Logf("policy watch: reload failed, keeping current snapshot: %v", err)
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				redact.Logf("policy watch error: %v", werr)
			}
		}
	}()

	return func() {
		w.Close()
		<-done
	}, nil
}
