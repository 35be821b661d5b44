// Package llm wraps the external model services the pipeline consumes:
// chat completion (one-shot and streaming), batch text embedding, and
// cross-encoder reranking. All calls go to an OpenAI-compatible
// endpoint (DashScope compatible mode by default).
package llm

import (
	"context"
	"io"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"
	"github.com/openai/openai-go/v2/shared"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

// DefaultBaseURL is the DashScope OpenAI-compatible endpoint.
const DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// TokenStream yields incremental content chunks from a streaming
// completion. Recv returns io.EOF when the stream is exhausted.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Message is a single chat turn. Role is one of "system", "user",
// "assistant".
type Message struct {
	Role    string
	Content string
}

// ChatClient is the one-shot and streaming completion contract.
// Implementations must be safe for concurrent use.
type ChatClient interface {
	// Generate runs a single completion and returns the full text.
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)

	// GenerateMessages runs a completion over an explicit message list,
	// for callers that need a system prompt or conversation history.
	GenerateMessages(ctx context.Context, messages []Message, temperature float64) (string, error)

	// GenerateStream starts a streaming completion.
	GenerateStream(ctx context.Context, prompt string, temperature float64) (TokenStream, error)
}

// ChatConfig configures an OpenAI-compatible chat client.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// JSONOutput requests a JSON-object response format, used by the
	// detector/expander/HyDE prompts.
	JSONOutput bool
}

// OpenAIChat is the openai-go backed ChatClient.
type OpenAIChat struct {
	client     openai.Client
	model      string
	jsonOutput bool
}

var _ ChatClient = (*OpenAIChat)(nil)

// NewOpenAIChat creates a chat client for the given model.
func NewOpenAIChat(cfg ChatConfig) *OpenAIChat {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OpenAIChat{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(baseURL),
		),
		model:      cfg.Model,
		jsonOutput: cfg.JSONOutput,
	}
}

func (c *OpenAIChat) params(messages []openai.ChatCompletionMessageParamUnion, temperature float64) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	}
	if c.jsonOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func (c *OpenAIChat) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, temperature float64) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages, temperature))
	if err != nil {
		return "", ragerrors.Wrap(ragerrors.ErrCodeLLMCall, err)
	}
	if len(resp.Choices) == 0 {
		return "", ragerrors.New(ragerrors.ErrCodeLLMCall, "completion returned no choices", nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Generate runs a one-shot completion.
func (c *OpenAIChat) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return c.complete(ctx, []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)}, temperature)
}

// GenerateMessages runs a completion over an explicit message list.
func (c *OpenAIChat) GenerateMessages(ctx context.Context, messages []Message, temperature float64) (string, error) {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			converted = append(converted, openai.SystemMessage(m.Content))
		case "assistant":
			converted = append(converted, openai.AssistantMessage(m.Content))
		default:
			converted = append(converted, openai.UserMessage(m.Content))
		}
	}
	return c.complete(ctx, converted, temperature)
}

// GenerateStream starts a streaming completion.
func (c *OpenAIChat) GenerateStream(ctx context.Context, prompt string, temperature float64) (TokenStream, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)}
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(msgs, temperature))
	if err := stream.Err(); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeLLMCall, err)
	}
	return &openAITokenStream{stream: stream}, nil
}

// openAITokenStream adapts the SSE chunk stream to TokenStream,
// skipping empty deltas.
type openAITokenStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *openAITokenStream) Recv() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", ragerrors.Wrap(ragerrors.ErrCodeLLMCall, err)
	}
	return "", io.EOF
}

func (s *openAITokenStream) Close() error {
	return s.stream.Close()
}
