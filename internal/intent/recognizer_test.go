package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

func TestRecognizer_RetrievalTag(t *testing.T) {
	chat := &fakeChat{responses: []string{"RETRIEVAL"}}
	r, err := NewRecognizer(chat, 0, nil)
	require.NoError(t, err)

	need, err := r.Recognize(context.Background(), "酒店早餐怎么样？", nil)
	require.NoError(t, err)
	assert.True(t, need)
}

func TestRecognizer_DirectTag(t *testing.T) {
	chat := &fakeChat{responses: []string{"DIRECT"}}
	r, err := NewRecognizer(chat, 0, nil)
	require.NoError(t, err)

	need, err := r.Recognize(context.Background(), "你好", nil)
	require.NoError(t, err)
	assert.False(t, need)
}

func TestRecognizer_UnknownTagMeansDirect(t *testing.T) {
	chat := &fakeChat{responses: []string{"SOMETHING_ELSE"}}
	r, err := NewRecognizer(chat, 0, nil)
	require.NoError(t, err)

	need, err := r.Recognize(context.Background(), "嗯", nil)
	require.NoError(t, err)
	assert.False(t, need)
}

func TestRecognizer_CachesByQuery(t *testing.T) {
	chat := &fakeChat{responses: []string{"RETRIEVAL"}}
	r, err := NewRecognizer(chat, 4, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		need, err := r.Recognize(ctx, "酒店有停车场吗", nil)
		require.NoError(t, err)
		assert.True(t, need)
	}
	assert.Equal(t, 1, chat.calls, "repeated query must hit the cache")
}

func TestRecognizer_HistoryChangesCacheKey(t *testing.T) {
	chat := &fakeChat{responses: []string{"RETRIEVAL", "DIRECT"}}
	r, err := NewRecognizer(chat, 4, nil)
	require.NoError(t, err)

	ctx := context.Background()
	need, err := r.Recognize(ctx, "呢？", nil)
	require.NoError(t, err)
	assert.True(t, need)

	need, err = r.Recognize(ctx, "呢？", &Turn{User: "你好", Assistant: "您好！"})
	require.NoError(t, err)
	assert.False(t, need, "same query with history is a distinct cache entry")
	assert.Equal(t, 2, chat.calls)
}

func TestRecognizer_FailureIsFatal(t *testing.T) {
	chat := &fakeChat{err: errors.New("upstream down")}
	r, err := NewRecognizer(chat, 0, nil)
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), "酒店在哪", nil)
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeIntentFatal, ragerrors.GetCode(err))
	assert.True(t, ragerrors.IsFatal(err))
	assert.Equal(t, stageAttempts, chat.calls, "fatal only after the bounded retry")
}
