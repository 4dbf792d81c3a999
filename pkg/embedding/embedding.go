// Package embedding defines the embedding-model contract nvdb treats as an
// external collaborator (spec §1: "the embedding model... is out of
// scope"), plus a trivial deterministic built-in implementation usable for
// tests and demos without pulling in a real model.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/nounverb/nvdb/pkg/nverrors"
)

// Embedder turns text into a fixed-length dense vector. Callers inject a
// real model; nvdb never implements one itself.
type Embedder interface {
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Deterministic is a hash-based stand-in embedder: same text always
// produces the same vector, and unrelated strings scatter roughly
// uniformly. It is not semantically meaningful and exists only so the
// store, HNSW, and query packages have something to exercise without a
// real model wired in.
type Deterministic struct {
	dim int
}

// NewDeterministic creates a Deterministic embedder producing vectors of
// the given dimension (default 384, matching spec's default "Q8" model).
func NewDeterministic(dim int) *Deterministic {
	if dim <= 0 {
		dim = 384
	}
	return &Deterministic{dim: dim}
}

func (d *Deterministic) Dimensions() int { return d.dim }

func (d *Deterministic) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nverrors.New("embed", nverrors.KindInvalidInput, nverrors.ErrMissingData)
	}
	vec := make([]float32, d.dim)
	h := fnv.New64a()
	for i := 0; i < d.dim; i++ {
		h.Write([]byte{byte(i)})
		h.Write([]byte(text))
		sum := h.Sum64()
		// Map to [-0.5, 0.5]. Each component is a hash of the whole text, so
		// identical text gives identical vectors but similar text does not
		// give nearby ones.
		vec[i] = float32(math.Sin(float64(sum%1000)/1000.0*math.Pi*2)) * 0.5
	}
	return vec, nil
}

func (d *Deterministic) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := d.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CanonicalText extracts the text an embedder should index for arbitrary
// entity `data`: strings pass through; anything else (e.g. a decoded JSON
// tree) falls back to its Go %v rendering. Kept intentionally simple —
// richer canonicalization (stripping markup, JSON field selection) belongs
// to the caller supplying `data`, not to this package.
func CanonicalText(data interface{}) string {
	if s, ok := data.(string); ok {
		return s
	}
	if data == nil {
		return ""
	}
	return fmt.Sprintf("%v", data)
}
