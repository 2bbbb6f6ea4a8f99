package encoder

import (
	"context"
	"hash/fnv"
	"strings"
)

// FakeEncoder is a deterministic bag-of-words hashing embedder. Each word
// is hashed into a bucket, so texts sharing vocabulary land near each other
// under cosine similarity. Good enough for tests and for running the
// pipeline without a model; not a semantic encoder.
type FakeEncoder struct {
	Dim   int
	Err   error
	Calls int // incremented per Encode, for test assertions
}

// NewFake returns a fake encoder with the given dimension.
func NewFake(dim int) *FakeEncoder {
	if dim <= 0 {
		dim = 256
	}
	return &FakeEncoder{Dim: dim}
}

func (e *FakeEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}
	e.Calls++

	vec := make([]float32, e.Dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[int(h.Sum32())%e.Dim]++
	}
	return vec, nil
}
