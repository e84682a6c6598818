package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider generates embeddings via the OpenAI embeddings API (or any
// compatible endpoint when a base URL is configured).
type OpenAIProvider struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAI creates a provider for the given API key and embedding model.
// baseURL may be empty for the default endpoint. dims is the model's vector
// length (e.g. 1536 for text-embedding-3-small).
func NewOpenAI(apiKey, baseURL, model string, dims int) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dims:   dims,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai/" + p.model
}

func (p *OpenAIProvider) Dimensions() int {
	return p.dims
}

// Ready verifies the API is reachable with the configured credentials.
func (p *OpenAIProvider) Ready(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("reaching openai API: %w", err)
	}
	return nil
}

// Embed requests a single embedding.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("requesting embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned an empty embedding")
	}
	return resp.Data[0].Embedding, nil
}
