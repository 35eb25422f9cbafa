package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Embedder converts text into a fixed-length vector. Implementations may
// fail transiently (rate limit, network, missing credential); callers treat
// every failure as "no embedding available" and continue without a vector.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// GeminiClient implements Embedder on the Gemini embedding API
type GeminiClient struct {
	client *genai.Client
	model  string
}

type GeminiOption func(*GeminiClient)

// WithEmbeddingModel overrides the embedding model name
func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.model = model
	}
}

// NewGemini creates a Gemini-backed embedder using an API key
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client: client,
		model:  "gemini-embedding-001",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// EmbedDocument embeds text for storage-side indexing.
func (g *GeminiClient) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds text for query-side similarity lookup.
func (g *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, "RETRIEVAL_QUERY")
}

func (g *GeminiClient) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType: taskType,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("task_type", taskType))
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding response", goerr.V("model", g.model))
	}

	return resp.Embeddings[0].Values, nil
}
