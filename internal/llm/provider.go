package llm

import (
	"context"
	"fmt"

	"citerag/internal/config"
	"citerag/internal/llm/hashemb"
	"citerag/internal/llm/openai"
)

// Embedder provides embedding generation APIs. Vectors come back in input
// order; callers normalize them.
type Embedder interface {
	Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// FromConfig returns the embedder selected by retrieval.embedding_provider.
func FromConfig(cfg config.Config) (Embedder, error) {
	switch cfg.Retrieval.EmbeddingProvider {
	case "hash":
		return hashemb.New(cfg.Retrieval.EmbeddingDim), nil
	case "openai":
		return openai.New(cfg.OpenAI.BaseURL, cfg.APIKey(), cfg.OpenAI.MaxRetries).
			WithMinInterval(cfg.OpenAI.MinInterval), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Retrieval.EmbeddingProvider)
	}
}
