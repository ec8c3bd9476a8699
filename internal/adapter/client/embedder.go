package client

import (
	"context"

	"google.golang.org/genai"

	"relay-core/internal/domain/entity"
)

// Embedder produces vectors for the semantic response cache.
type Embedder struct {
	client *genai.Client
	model  string // e.g. "text-embedding-004"
}

func NewEmbedderFromClient(c *genai.Client, model string) *Embedder {
	return &Embedder{client: c, model: model}
}

func (e *Embedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, entity.NewProviderError(entity.ClassifyMessage(err.Error()), "gemini", err.Error(), err)
	}
	if len(res.Embeddings) == 0 {
		return nil, entity.NewProviderError(entity.KindInternal, "gemini", "empty embedding response", nil)
	}
	return res.Embeddings[0].Values, nil
}
