package rag

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
	"github.com/gardenhotel/reviewrag/internal/generate"
	"github.com/gardenhotel/reviewrag/internal/intent"
	"github.com/gardenhotel/reviewrag/internal/llm"
	"github.com/gardenhotel/reviewrag/internal/retrieval"
	"github.com/gardenhotel/reviewrag/internal/review"
	"github.com/gardenhotel/reviewrag/internal/vector"
)

// scriptedChat answers every call with the same response (or error).
type scriptedChat struct {
	response string
	err      error
	chunks   []string
}

func (s *scriptedChat) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return s.response, s.err
}

func (s *scriptedChat) GenerateMessages(ctx context.Context, messages []llm.Message, temperature float64) (string, error) {
	return s.response, s.err
}

func (s *scriptedChat) GenerateStream(ctx context.Context, prompt string, temperature float64) (llm.TokenStream, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &scriptedStream{chunks: s.chunks}, nil
}

type scriptedStream struct {
	chunks []string
	pos    int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error { return nil }

type stubStore struct {
	hits []vector.Hit
}

func (s *stubStore) Query(ctx context.Context, vec []float32, topK int, filter *vector.Filter) ([]vector.Hit, error) {
	if len(s.hits) > topK {
		return s.hits[:topK], nil
	}
	return s.hits, nil
}

type stubSummaryStore struct{}

func (s *stubSummaryStore) Query(ctx context.Context, embeddings [][]float32, nResults int) ([][]vector.SummaryHit, error) {
	return make([][]vector.SummaryHit, len(embeddings)), nil
}

type stubEmbedder struct{}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 2 }

type stubReranker struct {
	err error
}

func (s *stubReranker) Rerank(ctx context.Context, query string, documents []string, topN int) (map[int]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	scores := make(map[int]float64, len(documents))
	for i := range documents {
		scores[i] = 1.0 - float64(i)*0.1
	}
	return scores, nil
}

// pipelineFixture bundles the scripted services behind a pipeline.
type pipelineFixture struct {
	recognizer *scriptedChat
	detector   *scriptedChat
	expander   *scriptedChat
	generator  *scriptedChat
	reranker   *stubReranker
}

func newTestPipeline(t *testing.T, fx pipelineFixture) *Pipeline {
	t.Helper()

	table := review.NewTable([]review.Review{
		{CommentID: "A", Text: "早餐很丰盛", Score: 4.8, QualityScore: 8, Star: 5,
			PublishDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)},
		{CommentID: "B", Text: "隔音一般", Score: 3.5, QualityScore: 6, Star: 3,
			PublishDate: time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)},
	})

	recognizer, err := intent.NewRecognizer(fx.recognizer, 8, nil)
	require.NoError(t, err)
	detector := intent.NewDetector(fx.detector, nil)
	expander := intent.NewExpander(fx.expander, nil)
	hyde := intent.NewHyDEGenerator(fx.expander, nil)

	comments := &stubStore{hits: []vector.Hit{{ID: "A", Score: 0.95}, {ID: "B", Score: 0.80}}}
	retriever := retrieval.NewRetriever(nil, comments, &stubStore{}, &stubSummaryStore{},
		&stubEmbedder{}, hyde, table, nil)

	generator := generate.NewGenerator(fx.generator, nil)
	return NewPipeline(recognizer, detector, expander, retriever, fx.reranker, generator, DefaultToday, nil)
}

// testOptions keeps bm25 and hyde off: the fixture has no inverted
// index and hyde would multiply scripted calls.
func testOptions() Options {
	opts := DefaultOptions()
	opts.EnableBM25 = false
	opts.EnableHyde = false
	return opts
}

func retrievalFixture() pipelineFixture {
	return pipelineFixture{
		recognizer: &scriptedChat{response: "RETRIEVAL"},
		detector:   &scriptedChat{response: `{"room_type": null, "fuzzy_room_type": null, "time_sensitivity": null}`},
		expander: &scriptedChat{response: `{"rewritten_queries": [
			{"query": "早餐种类丰富吗", "weight": 0.6},
			{"query": "早餐口味如何", "weight": 0.4}
		]}`},
		generator: &scriptedChat{chunks: []string{"早餐", "整体不错"}},
		reranker:  &stubReranker{},
	}
}

func TestQuery_RetrievalBranch(t *testing.T) {
	p := newTestPipeline(t, retrievalFixture())

	result, err := p.Query(context.Background(), "早餐怎么样", testOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, "早餐整体不错", result.Response)
	assert.True(t, result.QueryProcessing.IntentRecognition)
	require.Len(t, result.QueryProcessing.IntentExpansion, 2)

	require.Len(t, result.References.Comments, 2)
	first := result.References.Comments[0]
	assert.Equal(t, "A", first.ID)
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "2025-01-10", first.PublishDate)
	assert.Greater(t, first.RelevanceScore, result.References.Comments[1].RelevanceScore)

	require.NotNil(t, result.Timing.Retrieval)
	require.NotNil(t, result.Timing.Ranking)
	assert.Greater(t, result.Timing.QueryProcessingTotal, 0.0)
}

func TestQuery_DirectBranch(t *testing.T) {
	fx := retrievalFixture()
	fx.recognizer = &scriptedChat{response: "DIRECT"}
	fx.generator = &scriptedChat{chunks: []string{"您好！", "有什么可以帮您？"}}
	p := newTestPipeline(t, fx)

	result, err := p.Query(context.Background(), "你好", testOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, "您好！有什么可以帮您？", result.Response)
	assert.False(t, result.QueryProcessing.IntentRecognition)
	assert.Empty(t, result.References.Comments)
	assert.Empty(t, result.References.Summaries)
	assert.Nil(t, result.Timing.Retrieval)
	assert.Nil(t, result.Timing.Ranking)
}

func TestQuery_ExpansionFailureFallsBackToIdentity(t *testing.T) {
	fx := retrievalFixture()
	fx.expander = &scriptedChat{err: errors.New("expansion down")}
	p := newTestPipeline(t, fx)

	result, err := p.Query(context.Background(), "早餐怎么样", testOptions(), nil)
	require.NoError(t, err)

	assert.Nil(t, result.QueryProcessing.IntentExpansion,
		"the response reports the failed expansion as absent")
	require.Len(t, result.References.Comments, 2, "retrieval still ran on the identity sub-query")
}

func TestQuery_GenerationDisabled(t *testing.T) {
	p := newTestPipeline(t, retrievalFixture())
	opts := testOptions()
	opts.EnableGeneration = false

	result, err := p.Query(context.Background(), "早餐怎么样", opts, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Response)
	require.Len(t, result.References.Comments, 2)
	assert.Zero(t, result.Timing.Generation)
}

func TestQuery_RankingDisabledUsesFusedOrder(t *testing.T) {
	p := newTestPipeline(t, retrievalFixture())
	opts := testOptions()
	opts.EnableRanking = false

	result, err := p.Query(context.Background(), "早餐怎么样", opts, nil)
	require.NoError(t, err)

	require.Len(t, result.References.Comments, 2)
	assert.Equal(t, 1, result.References.Comments[0].Rank)
	assert.InDelta(t, result.References.Comments[0].RelevanceScore, 0.6/61.0+0.4/61.0, 1e-9,
		"with ranking off the fused score stands in for relevance")
}

func TestQuery_RerankFailureFailsRequest(t *testing.T) {
	fx := retrievalFixture()
	fx.reranker = &stubReranker{err: errors.New("rerank down")}
	p := newTestPipeline(t, fx)

	_, err := p.Query(context.Background(), "早餐怎么样", testOptions(), nil)
	assert.Error(t, err)
}

func TestQuery_InvalidOptions(t *testing.T) {
	p := newTestPipeline(t, retrievalFixture())

	opts := testOptions()
	opts.RouteTopK = 0
	_, err := p.Query(context.Background(), "早餐怎么样", opts, nil)
	assert.Equal(t, ragerrors.ErrCodeInvalidOption, ragerrors.GetCode(err))

	opts = testOptions()
	opts.EnableVector = false
	opts.EnableReverse = false
	opts.EnableSummary = false
	_, err = p.Query(context.Background(), "早餐怎么样", opts, nil)
	assert.Equal(t, ragerrors.ErrCodeNoRoutes, ragerrors.GetCode(err))
}

func collectEvents(t *testing.T, p *Pipeline, query string, opts Options) []Event {
	t.Helper()
	var events []Event
	err := p.QueryStream(context.Background(), query, opts, nil, func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	return events
}

func eventTypes(events []Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestQueryStream_RetrievalEventOrder(t *testing.T) {
	p := newTestPipeline(t, retrievalFixture())

	events := collectEvents(t, p, "早餐怎么样", testOptions())
	require.GreaterOrEqual(t, len(events), 4)

	types := eventTypes(events)
	assert.Equal(t, EventIntent, types[0])
	assert.Equal(t, EventReferences, types[1])
	for _, typ := range types[2 : len(types)-1] {
		assert.Equal(t, EventChunk, typ)
	}
	assert.Equal(t, EventDone, types[len(types)-1])

	refs, ok := events[1].Data.(References)
	require.True(t, ok)
	assert.Len(t, refs.Comments, 2)
}

func TestQueryStream_DirectEventOrder(t *testing.T) {
	fx := retrievalFixture()
	fx.recognizer = &scriptedChat{response: "DIRECT"}
	fx.generator = &scriptedChat{chunks: []string{"您好", "！"}}
	p := newTestPipeline(t, fx)

	events := collectEvents(t, p, "你好", testOptions())
	types := eventTypes(events)
	assert.Equal(t, []string{EventIntent, EventChunk, EventChunk, EventDone}, types,
		"the direct branch emits no references event")

	done := events[len(events)-1].Data.(map[string]any)
	refs, ok := done["references"].(References)
	require.True(t, ok, "the direct done event carries empty references")
	assert.Empty(t, refs.Comments)
}

func TestQueryStream_EmitErrorAborts(t *testing.T) {
	p := newTestPipeline(t, retrievalFixture())

	clientGone := errors.New("client gone")
	var count int
	err := p.QueryStream(context.Background(), "早餐怎么样", testOptions(), nil, func(ev Event) error {
		count++
		if ev.Type == EventReferences {
			return clientGone
		}
		return nil
	})
	require.ErrorIs(t, err, clientGone)
	assert.Equal(t, 2, count, "nothing is emitted past the failed write")
}

func TestQueryStream_IntentEventPayload(t *testing.T) {
	p := newTestPipeline(t, retrievalFixture())

	events := collectEvents(t, p, "早餐怎么样", testOptions())
	intentData, ok := events[0].Data.(map[string]bool)
	require.True(t, ok)
	assert.True(t, intentData["need_retrieval"])
}
