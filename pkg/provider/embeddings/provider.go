// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// studylens uses embeddings for one thing: attributing a verified claim to the
// screen capture whose OCR text it most likely came from. The provider is
// optional; without one attribution falls back to proportional placement.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"math"
)

// Provider is the abstraction over any text-embedding backend. All vectors
// returned by one Provider share the same dimensionality.
type Provider interface {
	// Embed computes the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embeddings for texts in one call. The i-th result
	// corresponds to texts[i]. On error no partial results are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length, or 0 when unknown.
	Dimensions() int

	// ModelID returns the backend model identifier.
	ModelID() string
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is all zeros.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
