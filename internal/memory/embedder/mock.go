package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
	"sync"

	"github.com/zero-day-ai/crucible/internal/types"
)

// MockEmbedder is an offline Embedder. Vectors are derived from a SHA-256 of
// the text, so the same text always yields the same unit vector.
type MockEmbedder struct {
	mu           sync.RWMutex
	dimensions   int
	model        string
	texts        []string
	embedError   error
	healthStatus types.HealthStatus
}

// NewMockEmbedder creates a mock embedder producing 64-dimensional vectors.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		dimensions:   64,
		model:        "mock-embedder",
		healthStatus: types.Healthy("mock embedder"),
	}
}

// Embed returns the deterministic vector for text, or the configured error.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.texts = append(m.texts, text)
	if m.embedError != nil {
		return nil, m.embedError
	}
	return m.generate(text), nil
}

// EmbedBatch embeds each text in order.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, NewEmbeddingBatchError("mock batch failed", err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (m *MockEmbedder) generate(text string) []float64 {
	hash := sha256.Sum256([]byte(text))
	rng := rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(hash[:8]))))

	vec := make([]float64, m.dimensions)
	var sum float64
	for i := range vec {
		vec[i] = rng.Float64()*2 - 1
		sum += vec[i] * vec[i]
	}

	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Dimensions returns the dimensionality of the embedding vectors.
func (m *MockEmbedder) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Model returns the name of the mock embedding model.
func (m *MockEmbedder) Model() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

// Health returns the configured health status.
func (m *MockEmbedder) Health(ctx context.Context) types.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthStatus
}

// SetModel changes the reported model name.
func (m *MockEmbedder) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// SetEmbedError makes every subsequent Embed call fail with err.
func (m *MockEmbedder) SetEmbedError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedError = err
}

// SetHealthStatus configures what Health() should return.
func (m *MockEmbedder) SetHealthStatus(status types.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthStatus = status
}

// EmbeddedTexts returns every text passed to Embed, in call order.
func (m *MockEmbedder) EmbeddedTexts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}
