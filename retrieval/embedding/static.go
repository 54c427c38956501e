package embedding

import (
	"context"
	"hash/fnv"
)

// Static is a deterministic embedder for tests and offline runs: the same
// text always maps to the same vector, and different texts almost always
// differ. It carries no semantic signal.
type Static struct {
	Dim int
}

// NewStatic creates a deterministic embedder with the given dimension.
func NewStatic(dim int) *Static {
	if dim <= 0 {
		dim = 8
	}
	return &Static{Dim: dim}
}

// Embed hashes the text into a fixed-width vector.
func (s *Static) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.Dim)
	h := fnv.New64a()
	for i := range vec {
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		vec[i] = float32(h.Sum64()%1000) / 1000
	}
	return vec, nil
}

// Dimension returns the configured vector width.
func (s *Static) Dimension() int { return s.Dim }
