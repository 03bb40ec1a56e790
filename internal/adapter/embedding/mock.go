package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// mockDimension is the vector size produced by the mock embedder.
const mockDimension = 64

// MockEmbedder produces deterministic bag-of-words vectors by hashing tokens
// into a fixed number of buckets. Texts sharing words land close together
// under cosine distance, which is enough for local development and tests.
type MockEmbedder struct{}

// NewMockEmbedder creates a new mock embedder.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// Ensure MockEmbedder implements Embedder.
var _ Embedder = (*MockEmbedder)(nil)

// Embed returns one normalized vector per input text.
func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = embedText(text)
	}
	return vectors, nil
}

func embedText(text string) []float32 {
	vec := make([]float32, mockDimension)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%mockDimension]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}
