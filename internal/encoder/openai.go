package encoder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEncoder calls an embeddings API. Determinism holds for a pinned
// model version, which is what the config names.
type OpenAIEncoder struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds an encoder against the given endpoint. baseURL may be
// empty for the public API.
func NewOpenAI(baseURL, apiKey, model string) *OpenAIEncoder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEncoder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (e *OpenAIEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings call: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embeddings call returned no vector")
	}
	return resp.Data[0].Embedding, nil
}
