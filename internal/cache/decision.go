package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/vanguard-ai/vanguard/internal/verdict"
)

// entry stores a verdict with its creation time. The verdict keeps the
// processing time of the original computation.
type entry struct {
	verdict   verdict.Verdict
	createdAt time.Time
}

// Decision memoizes final verdicts keyed by normalized text plus the
// snapshot identity. A policy or index change alters the key, so stale
// entries are never returned; they simply age out of the LRU.
type Decision struct {
	lru *LRU[string, entry]
}

// NewDecision creates a decision cache bounded to size entries.
func NewDecision(size int) *Decision {
	return &Decision{lru: NewLRU[string, entry](size)}
}

// Key derives the cache key from the normalized text and the snapshot
// identity it was decided under.
func Key(normalized, policyVersion, indexHash string) string {
	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(policyVersion))
	h.Write([]byte{0})
	h.Write([]byte(indexHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached verdict with CacheHit set.
func (d *Decision) Get(key string) (verdict.Verdict, bool) {
	e, ok := d.lru.Get(key)
	if !ok {
		return verdict.Verdict{}, false
	}
	v := e.verdict
	v.CacheHit = true
	return v, true
}

// Put stores a verdict. CacheHit is cleared so retrieval is what sets it.
func (d *Decision) Put(key string, v verdict.Verdict) {
	v.CacheHit = false
	d.lru.Set(key, entry{verdict: v, createdAt: time.Now()})
}

// Stats returns hit and miss counters.
func (d *Decision) Stats() (hits, misses uint64) {
	return d.lru.Stats()
}

// Len reports the number of cached verdicts.
func (d *Decision) Len() int {
	return d.lru.Len()
}
