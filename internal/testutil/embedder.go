// Package testutil provides shared test infrastructure: a scriptable
// embedder, a no-op logger, and a gated connection to a real Postgres.
package testutil

import (
	"context"
	"hash/fnv"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// Embedder implements ai.Embedder with deterministic output, so vector
// assertions are reproducible without a provider.
type Embedder struct {
	// Dims is the native dimensionality of returned vectors.
	Dims int
	// Err, when non-nil, is returned by every Embed call.
	Err error
	// FailFirst makes the first N calls fail with Err before
	// succeeding, for retry tests.
	FailFirst int

	Calls     int
	LastInput string
}

func (m *Embedder) Name() string { return "test-embedder" }

func (m *Embedder) Register(r api.Registry) {}

func (m *Embedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.Calls++

	var text string
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		text = req.Input[0].Content[0].Text
	}
	m.LastInput = text

	if m.Err != nil && (m.FailFirst == 0 || m.Calls <= m.FailFirst) {
		return nil, m.Err
	}

	dims := m.Dims
	if dims == 0 {
		dims = 8
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: Vector(text, dims)}},
	}, nil
}

// Vector derives a deterministic pseudo-embedding from text. Equal
// inputs get equal vectors.
func Vector(text string, dims int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000 - 0.5
	}
	return vec
}
