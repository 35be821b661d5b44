package llm

import (
	"context"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

// DefaultEmbeddingDimensions matches the dimension the comment and
// reverse-query collections were built with.
const DefaultEmbeddingDimensions = 1024

// Embedder produces dense vectors for a batch of texts.
type Embedder interface {
	// EmbedBatch embeds all texts in a single call, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int
}

// EmbedderConfig configures the OpenAI-compatible embedder.
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIEmbedder is the openai-go backed Embedder.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dims   int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates a batch embedder.
func NewOpenAIEmbedder(cfg EmbedderConfig) *OpenAIEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultEmbeddingDimensions
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(baseURL),
		),
		model: cfg.Model,
		dims:  dims,
	}
}

// EmbedBatch embeds all texts in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(e.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(e.dims)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeEmbeddingFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed,
			"embedding count does not match input count", nil)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}
