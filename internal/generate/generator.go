package generate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
	"github.com/gardenhotel/reviewrag/internal/llm"
)

// generationTemperature is fixed for the answer model.
const generationTemperature = 0.7

// Metrics are the generation latency figures in seconds. TTFTModel is
// the model's time to first token, Subsequent the time from first to
// last token, Generation the whole call.
type Metrics struct {
	TTFTModel  float64 `json:"ttft_model"`
	Subsequent float64 `json:"subsequent"`
	Generation float64 `json:"generation"`
}

// Generator streams the final answer.
type Generator struct {
	client llm.ChatClient
	logger *slog.Logger
}

// NewGenerator creates a generator over the answer model.
func NewGenerator(client llm.ChatClient, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, logger: logger}
}

// Generate runs the completion and returns the full answer text with
// latency metrics.
func (g *Generator) Generate(ctx context.Context, in PromptInput) (string, Metrics, error) {
	return g.stream(ctx, in, nil)
}

// GenerateStream runs the completion, calling emit for every content
// chunk as it arrives. It returns the accumulated text and metrics.
// An emit error aborts the stream (the client went away).
func (g *Generator) GenerateStream(ctx context.Context, in PromptInput, emit func(chunk string) error) (string, Metrics, error) {
	return g.stream(ctx, in, emit)
}

func (g *Generator) stream(ctx context.Context, in PromptInput, emit func(chunk string) error) (string, Metrics, error) {
	start := time.Now()
	prompt := BuildPrompt(in)

	stream, err := g.client.GenerateStream(ctx, prompt, generationTemperature)
	if err != nil {
		return "", Metrics{}, err
	}
	defer func() { _ = stream.Close() }()

	var (
		content    strings.Builder
		metrics    Metrics
		firstToken time.Time
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", Metrics{}, ragerrors.Wrap(ragerrors.ErrCodeLLMCall, err)
		}
		if metrics.TTFTModel == 0 {
			metrics.TTFTModel = time.Since(start).Seconds()
			firstToken = time.Now()
		}
		content.WriteString(chunk)
		if emit != nil {
			if err := emit(chunk); err != nil {
				return content.String(), metrics, err
			}
		}
	}

	if metrics.TTFTModel != 0 {
		metrics.Subsequent = time.Since(firstToken).Seconds()
	}
	metrics.Generation = time.Since(start).Seconds()
	return content.String(), metrics, nil
}
