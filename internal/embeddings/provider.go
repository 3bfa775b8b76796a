// Package embeddings provides text embedding via pluggable providers.
//
// A Provider maps text to a fixed-length vector. Two implementations exist:
// a deterministic hash-based mock for offline use and tests, and a remote
// OpenAI-backed client. The provider is selected at construction via
// ProviderKind, never by runtime type inspection.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for embedding providers.
var (
	ErrInvalidConfig = errors.New("invalid embedding configuration")
	ErrEmptyInput    = errors.New("embedding input cannot be empty")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float64, error)
	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
}

// ProviderKind selects the provider implementation.
type ProviderKind string

const (
	// KindMock is the deterministic hash-based provider.
	KindMock ProviderKind = "mock"
	// KindOpenAI is the remote OpenAI embeddings API.
	KindOpenAI ProviderKind = "openai"
)

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Kind is the provider type: "mock" or "openai".
	Kind ProviderKind `koanf:"provider"`
	// Model is the embedding model name (OpenAI only).
	Model string `koanf:"model"`
	// APIKey authenticates the remote provider (OpenAI only).
	APIKey string `koanf:"api_key"`
	// Dimension overrides the mock vector dimension (default 256).
	Dimension int `koanf:"dimension"`
}

// NewProvider creates an embedding provider from the configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Kind {
	case KindMock, "":
		return NewMockProvider(cfg.Dimension), nil
	case KindOpenAI:
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Kind)
	}
}
