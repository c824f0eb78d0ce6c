package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIModel = "text-embedding-3-small"
	defaultOpenAIDims  = 1536
)

type embeddingsAPI interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// UsageFunc receives the token count of each successful embedding call.
type UsageFunc func(ctx context.Context, model string, tokens int64)

// OpenAIEmbedder uses the OpenAI embeddings API, or any compatible endpoint.
type OpenAIEmbedder struct {
	api     embeddingsAPI
	model   string
	dims    int
	onUsage UsageFunc
}

// NewOpenAIEmbedder creates an embedder backed by openai-go.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dims int) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return newOpenAIEmbedder(&client.Embeddings, model, dims)
}

func newOpenAIEmbedder(api embeddingsAPI, model string, dims int) *OpenAIEmbedder {
	if model == "" {
		model = defaultOpenAIModel
	}
	if dims == 0 {
		dims = defaultOpenAIDims
	}
	return &OpenAIEmbedder{api: api, model: model, dims: dims}
}

// OnUsage registers a callback for token accounting.
func (e *OpenAIEmbedder) OnUsage(fn UsageFunc) { e.onUsage = fn }

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	vs, err := e.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)}, 1)
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}, len(texts))
}

func (e *OpenAIEmbedder) embed(ctx context.Context, input openai.EmbeddingNewParamsInputUnion, want int) ([]Vector, error) {
	resp, err := e.api.New(ctx, openai.EmbeddingNewParams{
		Input: input,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != want {
		return nil, fmt.Errorf("openai embeddings: got %d vectors, want %d", len(resp.Data), want)
	}
	out := make([]Vector, len(resp.Data))
	for _, d := range resp.Data {
		if int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	if e.onUsage != nil {
		e.onUsage(ctx, e.model, resp.Usage.TotalTokens)
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dims() int { return e.dims }
