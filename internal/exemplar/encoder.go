package exemplar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"

	"golang.org/x/sync/singleflight"

	"github.com/vanguard-ai/vanguard/internal/cache"
)

// Encoder turns text into an embedding vector. Implementations must be
// deterministic for a given model version and must honor ctx cancellation.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Memoized wraps an Encoder with a bounded LRU keyed by the text hash, and
// collapses concurrent encodes of the same string into one call.
type Memoized struct {
	inner Encoder
	memo  *cache.LRU[string, []float32]
	group singleflight.Group
}

// NewMemoized bounds the memo to size entries.
func NewMemoized(inner Encoder, size int) *Memoized {
	return &Memoized{
		inner: inner,
		memo:  cache.NewLRU[string, []float32](size),
	}
}

func (m *Memoized) Encode(ctx context.Context, text string) ([]float32, error) {
	key := textKey(text)
	if vec, ok := m.memo.Get(key); ok {
		return vec, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		vec, err := m.inner.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		m.memo.Set(key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func textKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// UnitNormalize scales vec to unit length in place and returns it.
// A zero vector is returned unchanged.
func UnitNormalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= norm
	}
	return vec
}
