// Package memtest provides deterministic test doubles for the memory
// backends.
package memtest

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Embedder produces deterministic unit vectors from text without any
// network dependency. Equal inputs always map to equal vectors, so tests can
// assert exact similarity behavior.
type Embedder struct {
	Dim int

	mu    sync.Mutex
	calls int

	// Fail, when set, is returned from Embed instead of a vector.
	Fail error
}

// NewEmbedder returns a mock embedder of the given dimension.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{Dim: dim}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	fail := e.Fail
	e.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, e.Dim)
	var norm float64
	for i := range vec {
		// Cheap LCG seeded by the content hash.
		state = state*6364136223846793005 + 1442695040888963407
		v := float64(int64(state>>32))/float64(math.MaxInt32) - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (e *Embedder) Dimension() int { return e.Dim }

func (e *Embedder) Name() string { return "mock" }

// Calls reports how many times Embed has been invoked.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
