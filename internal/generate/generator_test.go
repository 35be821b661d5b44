package generate

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenhotel/reviewrag/internal/llm"
)

// fakeTokenStream yields scripted chunks then io.EOF.
type fakeTokenStream struct {
	chunks []string
	err    error
	pos    int
}

func (f *fakeTokenStream) Recv() (string, error) {
	if f.pos < len(f.chunks) {
		chunk := f.chunks[f.pos]
		f.pos++
		return chunk, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return "", io.EOF
}

func (f *fakeTokenStream) Close() error { return nil }

type fakeStreamChat struct {
	stream    *fakeTokenStream
	streamErr error
}

func (f *fakeStreamChat) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeStreamChat) GenerateMessages(ctx context.Context, messages []llm.Message, temperature float64) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeStreamChat) GenerateStream(ctx context.Context, prompt string, temperature float64) (llm.TokenStream, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

func TestGenerate_CollectsChunks(t *testing.T) {
	chat := &fakeStreamChat{stream: &fakeTokenStream{chunks: []string{"早餐", "很", "丰盛"}}}
	g := NewGenerator(chat, nil)

	content, metrics, err := g.Generate(context.Background(), PromptInput{Query: "早餐怎么样"})
	require.NoError(t, err)
	assert.Equal(t, "早餐很丰盛", content)
	assert.Greater(t, metrics.TTFTModel, 0.0)
	assert.GreaterOrEqual(t, metrics.Generation, metrics.TTFTModel)
}

func TestGenerateStream_EmitsEveryChunk(t *testing.T) {
	chat := &fakeStreamChat{stream: &fakeTokenStream{chunks: []string{"a", "b", "c"}}}
	g := NewGenerator(chat, nil)

	var emitted []string
	content, _, err := g.GenerateStream(context.Background(), PromptInput{Query: "q"}, func(chunk string) error {
		emitted = append(emitted, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, emitted)
	assert.Equal(t, "abc", content)
}

func TestGenerateStream_EmitErrorAborts(t *testing.T) {
	chat := &fakeStreamChat{stream: &fakeTokenStream{chunks: []string{"a", "b", "c"}}}
	g := NewGenerator(chat, nil)

	clientGone := errors.New("client disconnected")
	count := 0
	content, _, err := g.GenerateStream(context.Background(), PromptInput{Query: "q"}, func(chunk string) error {
		count++
		if count == 2 {
			return clientGone
		}
		return nil
	})
	require.ErrorIs(t, err, clientGone)
	assert.Equal(t, "ab", content, "the partial content is returned with the abort")
	assert.Equal(t, 2, count)
}

func TestGenerate_StreamStartFailure(t *testing.T) {
	chat := &fakeStreamChat{streamErr: errors.New("model unavailable")}
	g := NewGenerator(chat, nil)

	_, _, err := g.Generate(context.Background(), PromptInput{Query: "q"})
	assert.Error(t, err)
}

func TestGenerate_MidStreamFailure(t *testing.T) {
	chat := &fakeStreamChat{stream: &fakeTokenStream{chunks: []string{"a"}, err: errors.New("connection reset")}}
	g := NewGenerator(chat, nil)

	_, _, err := g.Generate(context.Background(), PromptInput{Query: "q"})
	assert.Error(t, err)
}

func TestGenerate_EmptyStream(t *testing.T) {
	chat := &fakeStreamChat{stream: &fakeTokenStream{}}
	g := NewGenerator(chat, nil)

	content, metrics, err := g.Generate(context.Background(), PromptInput{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, content)
	assert.Zero(t, metrics.TTFTModel)
}
