package intent

import (
	"context"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
	"github.com/gardenhotel/reviewrag/internal/llm"
)

const recognizerSystemPrompt = `You are Qwen, created by Alibaba Cloud. You are a helpful assistant.
You should choose one tag from the tag list:
{"RETRIEVAL": "需要检索酒店评论知识库才能回答的问题（如询问酒店设施、服务、位置、价格等具体信息）", "DIRECT": "可以直接回答的通用问题（如问候、闲聊、常识性问题等，不涉及酒店具体信息）"}
Just reply with the chosen tag.`

// DefaultRecognizerCacheSize bounds the recognizer result cache.
const DefaultRecognizerCacheSize = 256

// Recognizer classifies an utterance as needing retrieval or not.
// Results are cached by (query, history) since the same opening
// questions repeat across sessions.
type Recognizer struct {
	client llm.ChatClient
	cache  *lru.Cache[string, bool]
	logger *slog.Logger
}

// NewRecognizer creates a recognizer with an LRU result cache.
func NewRecognizer(client llm.ChatClient, cacheSize int, logger *slog.Logger) (*Recognizer, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultRecognizerCacheSize
	}
	cache, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, ragerrors.InternalError("create recognizer cache", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{client: client, cache: cache, logger: logger}, nil
}

// Recognize returns true when the query needs the review knowledge
// base. history may be nil. Failure after the bounded retry is fatal:
// without the classification the pipeline cannot pick a branch.
func (r *Recognizer) Recognize(ctx context.Context, query string, history *Turn) (bool, error) {
	key := cacheKey(query, history)
	if cached, ok := r.cache.Get(key); ok {
		r.logger.Debug("intent recognizer cache hit", slog.String("query", query))
		return cached, nil
	}

	messages := []llm.Message{{Role: "system", Content: recognizerSystemPrompt}}
	if history != nil && history.User != "" {
		messages = append(messages,
			llm.Message{Role: "user", Content: history.User},
			llm.Message{Role: "assistant", Content: history.Assistant},
		)
	}
	messages = append(messages, llm.Message{Role: "user", Content: query})

	var tag string
	err := withRetry(ctx, func() error {
		var callErr error
		tag, callErr = r.client.GenerateMessages(ctx, messages, 0)
		return callErr
	})
	if err != nil {
		return false, ragerrors.Wrap(ragerrors.ErrCodeIntentFatal, err)
	}

	needRetrieval := strings.TrimSpace(tag) == "RETRIEVAL"
	r.cache.Add(key, needRetrieval)
	return needRetrieval, nil
}

func cacheKey(query string, history *Turn) string {
	if history == nil {
		return query
	}
	return query + "\x1f" + history.User + "\x1f" + history.Assistant
}
