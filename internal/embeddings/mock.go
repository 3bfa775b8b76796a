package embeddings

import (
	"context"
	"crypto/sha256"
)

// DefaultMockDimension is the vector size of the mock provider.
const DefaultMockDimension = 256

// MockProvider generates deterministic embeddings from a text hash. The same
// input always yields the same vector, which is what the retrieval and
// consolidation tests rely on.
type MockProvider struct {
	dimension int
}

// NewMockProvider creates a mock provider. A non-positive dimension falls
// back to DefaultMockDimension.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = DefaultMockDimension
	}
	return &MockProvider{dimension: dimension}
}

// Embed derives the vector from the sha256 digest of the text, each
// component in [-1, 1].
func (m *MockProvider) Embed(_ context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	digest := sha256.Sum256([]byte(text))
	embedding := make([]float64, m.dimension)
	for i := range embedding {
		embedding[i] = (float64(digest[i%len(digest)]) - 128) / 128
	}
	return embedding, nil
}

// EmbedBatch embeds each text independently.
func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// Dimension returns the configured vector size.
func (m *MockProvider) Dimension() int {
	return m.dimension
}
