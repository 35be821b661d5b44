package intent

import (
	"context"
	"errors"

	"github.com/gardenhotel/reviewrag/internal/llm"
)

// fakeChat returns scripted responses and records call counts.
type fakeChat struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeChat) next() (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeChat) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return f.next()
}

func (f *fakeChat) GenerateMessages(ctx context.Context, messages []llm.Message, temperature float64) (string, error) {
	return f.next()
}

func (f *fakeChat) GenerateStream(ctx context.Context, prompt string, temperature float64) (llm.TokenStream, error) {
	return nil, errors.New("streaming not supported by fake")
}

var _ llm.ChatClient = (*fakeChat)(nil)
