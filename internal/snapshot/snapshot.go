package snapshot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vanguard-ai/vanguard/internal/exemplar"
	"github.com/vanguard-ai/vanguard/internal/pattern"
	"github.com/vanguard-ai/vanguard/internal/policy"
	"github.com/vanguard-ai/vanguard/internal/redact"
)

// Snapshot is the atomically published tuple of patterns, exemplar index
// and policy. A request captures one snapshot at entry and holds it for its
// whole lifetime, so a reload mid-request can never tear its view.
type Snapshot struct {
	Patterns     *pattern.Library
	Index        *exemplar.Index
	Policy       *policy.Engine
	Version      string
	Tier2Enabled bool
	Tier3Enabled bool
}

// IndexHash returns the exemplar index content hash, used in cache keys.
func (s *Snapshot) IndexHash() string {
	if s.Index == nil {
		return ""
	}
	return s.Index.Hash()
}

// Options configures snapshot building.
type Options struct {
	PolicyPath        string // empty means built-in policy only
	SecurityThreshold float64
	ContentThreshold  float64
	Tier2Enabled      bool
	Tier3Enabled      bool
}

// Store builds snapshots off-line and publishes them through an atomic
// pointer. Rebuilds are serialized; readers are never blocked.
type Store struct {
	opts    Options
	encoder exemplar.Encoder

	mu      sync.Mutex // serializes Rebuild
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewStore builds the initial snapshot; the process does not start without
// one.
func NewStore(ctx context.Context, opts Options, enc exemplar.Encoder) (*Store, error) {
	st := &Store{opts: opts, encoder: enc}
	if err := st.Rebuild(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// Current returns the published snapshot. Callers must capture it once per
// request and not re-read it.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Rebuild loads the policy source, compiles patterns, re-encodes the
// exemplar index, and publishes the result. Any failure leaves the running
// snapshot untouched.
func (s *Store) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var loaded *policy.Loaded
	if s.opts.PolicyPath != "" {
		var err error
		loaded, err = policy.LoadFile(s.opts.PolicyPath, s.opts.SecurityThreshold, s.opts.ContentThreshold)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
	} else {
		loaded = &policy.Loaded{
			Engine: policy.Defaults(s.opts.SecurityThreshold, s.opts.ContentThreshold),
		}
	}

	specs := append(pattern.Builtin(), loaded.Patterns...)
	lib, err := pattern.NewLibrary(specs)
	if err != nil {
		return fmt.Errorf("compile patterns: %w", err)
	}

	exemplars := append(exemplar.Builtin(), loaded.Exemplars...)
	idx, err := exemplar.Build(ctx, s.encoder, exemplars)
	if err != nil {
		return fmt.Errorf("build exemplar index: %w", err)
	}

	tier2 := s.opts.Tier2Enabled
	tier3 := s.opts.Tier3Enabled
	if loaded.Tiers.Tier2Enabled != nil {
		tier2 = *loaded.Tiers.Tier2Enabled
	}
	if loaded.Tiers.Tier3Enabled != nil {
		tier3 = *loaded.Tiers.Tier3Enabled
	}

	version := fmt.Sprintf("v%d", s.version.Add(1))
	snap := &Snapshot{
		Patterns:     lib,
		Index:        idx,
		Policy:       loaded.Engine,
		Version:      version,
		Tier2Enabled: tier2,
		Tier3Enabled: tier3,
	}
	s.current.Store(snap)
	redact.Logf("snapshot %s published: patterns=%d exemplars=%d dim=%d tier2=%t tier3=%t",
		version, lib.Len(), idx.Count(), idx.Dimension(), tier2, tier3)
	return nil
}
