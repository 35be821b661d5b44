package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
	"github.com/gardenhotel/reviewrag/internal/intent"
	"github.com/gardenhotel/reviewrag/internal/llm"
	"github.com/gardenhotel/reviewrag/internal/review"
	"github.com/gardenhotel/reviewrag/internal/vector"
)

// fakeStore serves a fixed hit list and records the filters it saw.
type fakeStore struct {
	mu      sync.Mutex
	hits    []vector.Hit
	err     error
	filters []*vector.Filter
}

func (f *fakeStore) Query(ctx context.Context, vec []float32, topK int, filter *vector.Filter) ([]vector.Hit, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

type fakeSummaryStore struct {
	perQuery [][]vector.SummaryHit
	err      error
}

func (f *fakeSummaryStore) Query(ctx context.Context, embeddings [][]float32, nResults int) ([][]vector.SummaryHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.perQuery
	if out == nil {
		out = make([][]vector.SummaryHit, len(embeddings))
	}
	return out, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1), 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

var _ llm.Embedder = (*fakeEmbedder)(nil)

func testReviewTable() *review.Table {
	return review.NewTable([]review.Review{
		{CommentID: "A", Text: "早餐很丰盛", QualityScore: 8, PublishDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{CommentID: "B", Text: "隔音一般", QualityScore: 6, PublishDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{CommentID: "C", Text: "位置很方便", QualityScore: 7, PublishDate: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)},
	})
}

func singleQuery() []intent.SubQuery {
	return []intent.SubQuery{{Query: "早餐怎么样", Weight: 1.0}}
}

func TestRetrieve_NoRoutesEnabled(t *testing.T) {
	r := NewRetriever(nil, &fakeStore{}, &fakeStore{}, &fakeSummaryStore{}, &fakeEmbedder{}, nil, testReviewTable(), nil)

	_, err := r.Retrieve(context.Background(), singleQuery(), intent.Constraints{}, Options{PerRouteTopK: 10, FinalTopK: 10})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeNoRoutes, ragerrors.GetCode(err))
}

func TestRetrieve_VectorRouteBuildsCandidates(t *testing.T) {
	comments := &fakeStore{hits: []vector.Hit{
		{ID: "A", Score: 0.95},
		{ID: "B", Score: 0.80},
	}}
	r := NewRetriever(nil, comments, &fakeStore{}, &fakeSummaryStore{}, &fakeEmbedder{}, nil, testReviewTable(), nil)

	result, err := r.Retrieve(context.Background(), singleQuery(), intent.Constraints{},
		Options{EnableVector: true, PerRouteTopK: 10, FinalTopK: 10})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)

	first := result.Candidates[0]
	assert.Equal(t, "A", first.CommentID)
	assert.Equal(t, "早餐很丰盛", first.Text)
	assert.Equal(t, 1, first.RRFRank)
	assert.InDelta(t, 1.0/61.0, first.RRFScore, 1e-9)
	require.Len(t, first.RouteRanks[RouteVector], 1)
	assert.Equal(t, 1, first.RouteRanks[RouteVector][0].Rank)
	assert.Nil(t, first.RouteRanks[RouteVector][0].HydeIdx)
}

func TestRetrieve_ExactRoomFilterDominates(t *testing.T) {
	comments := &fakeStore{}
	r := NewRetriever(nil, comments, &fakeStore{}, &fakeSummaryStore{}, &fakeEmbedder{}, nil, testReviewTable(), nil)

	constraints := intent.Constraints{RoomType: "花园大床房", FuzzyRoomType: "大床房"}
	_, err := r.Retrieve(context.Background(), singleQuery(), constraints,
		Options{EnableVector: true, PerRouteTopK: 10, FinalTopK: 10})
	require.NoError(t, err)

	require.Len(t, comments.filters, 1)
	assert.Equal(t, "room_type = '花园大床房'", comments.filters[0].String())
}

func TestRetrieve_FuzzyFilterWhenNoExact(t *testing.T) {
	comments := &fakeStore{}
	r := NewRetriever(nil, comments, &fakeStore{}, &fakeSummaryStore{}, &fakeEmbedder{}, nil, testReviewTable(), nil)

	_, err := r.Retrieve(context.Background(), singleQuery(), intent.Constraints{FuzzyRoomType: "大床房"},
		Options{EnableVector: true, PerRouteTopK: 10, FinalTopK: 10})
	require.NoError(t, err)

	require.Len(t, comments.filters, 1)
	assert.Equal(t, "fuzzy_room_type = '大床房'", comments.filters[0].String())
}

func TestRetrieve_FailedRouteDegrades(t *testing.T) {
	comments := &fakeStore{err: errors.New("collection unavailable")}
	reverse := &fakeStore{hits: []vector.Hit{
		{ID: "rq-1", Score: 0.9, Fields: map[string]string{"comment_id": "C"}},
	}}
	r := NewRetriever(nil, comments, reverse, &fakeSummaryStore{}, &fakeEmbedder{}, nil, testReviewTable(), nil)

	result, err := r.Retrieve(context.Background(), singleQuery(), intent.Constraints{},
		Options{EnableVector: true, EnableReverse: true, PerRouteTopK: 10, FinalTopK: 10})
	require.NoError(t, err, "a failed route degrades, it does not fail the pass")
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "C", result.Candidates[0].CommentID)
}

func TestRetrieve_EmbeddingFailureEmptiesDenseRoutes(t *testing.T) {
	comments := &fakeStore{hits: []vector.Hit{{ID: "A", Score: 0.9}}}
	r := NewRetriever(nil, comments, &fakeStore{}, &fakeSummaryStore{}, &fakeEmbedder{err: errors.New("quota")}, nil, testReviewTable(), nil)

	result, err := r.Retrieve(context.Background(), singleQuery(), intent.Constraints{},
		Options{EnableVector: true, PerRouteTopK: 10, FinalTopK: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
}

func TestRetrieve_ReverseHitsWithoutCommentIDSkipped(t *testing.T) {
	reverse := &fakeStore{hits: []vector.Hit{
		{ID: "rq-1", Score: 0.9},
		{ID: "rq-2", Score: 0.8, Fields: map[string]string{"comment_id": "B"}},
	}}
	r := NewRetriever(nil, &fakeStore{}, reverse, &fakeSummaryStore{}, &fakeEmbedder{}, nil, testReviewTable(), nil)

	result, err := r.Retrieve(context.Background(), singleQuery(), intent.Constraints{},
		Options{EnableReverse: true, PerRouteTopK: 10, FinalTopK: 10})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "B", result.Candidates[0].CommentID)
	// The skipped hit does not renumber the survivor's rank.
	assert.Equal(t, 2, result.Candidates[0].RouteRanks[RouteReverse][0].Rank)
}

func TestRetrieve_MissingReviewSkipped(t *testing.T) {
	comments := &fakeStore{hits: []vector.Hit{
		{ID: "ghost", Score: 0.99},
		{ID: "A", Score: 0.90},
	}}
	r := NewRetriever(nil, comments, &fakeStore{}, &fakeSummaryStore{}, &fakeEmbedder{}, nil, testReviewTable(), nil)

	result, err := r.Retrieve(context.Background(), singleQuery(), intent.Constraints{},
		Options{EnableVector: true, PerRouteTopK: 10, FinalTopK: 10})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "A", result.Candidates[0].CommentID)
	assert.Equal(t, 2, result.Candidates[0].RRFRank, "fused rank numbering survives the skip")
}

func TestRetrieve_FinalTopKCut(t *testing.T) {
	comments := &fakeStore{hits: []vector.Hit{
		{ID: "A", Score: 0.9}, {ID: "B", Score: 0.8}, {ID: "C", Score: 0.7},
	}}
	r := NewRetriever(nil, comments, &fakeStore{}, &fakeSummaryStore{}, &fakeEmbedder{}, nil, testReviewTable(), nil)

	result, err := r.Retrieve(context.Background(), singleQuery(), intent.Constraints{},
		Options{EnableVector: true, PerRouteTopK: 10, FinalTopK: 2})
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
}

func TestRetrieve_SummaryMergeAcrossSubQueries(t *testing.T) {
	summaries := &fakeSummaryStore{perQuery: [][]vector.SummaryHit{
		{{Category: "早餐", Keywords: []string{"丰盛"}, SummaryText: "早餐整体评价好", CommentCount: 120, Score: 0.9}},
		{{Category: "早餐", Keywords: []string{"丰盛"}, SummaryText: "早餐整体评价好", CommentCount: 120, Score: 0.85}},
	}}
	r := NewRetriever(nil, &fakeStore{}, &fakeStore{}, summaries, &fakeEmbedder{}, nil, testReviewTable(), nil)

	subQueries := []intent.SubQuery{
		{Query: "早餐种类", Weight: 0.6},
		{Query: "早餐口味", Weight: 0.4},
	}
	result, err := r.Retrieve(context.Background(), subQueries, intent.Constraints{},
		Options{EnableSummary: true, PerRouteTopK: 10, FinalTopK: 10})
	require.NoError(t, err)

	require.Len(t, result.Summaries, 1, "the same category recalled twice merges")
	assert.Equal(t, "早餐", result.Summaries[0].Category)
	assert.Equal(t, []int{0, 1}, result.Summaries[0].RetrievedByQueries)
	assert.Equal(t, 120, result.Summaries[0].CommentCount)
}

func TestDedupeHydeHits(t *testing.T) {
	hits := []Hit{
		{CommentID: "A", Route: RouteHyde, Rank: 3, QueryIdx: 0, HydeIdx: 0},
		{CommentID: "A", Route: RouteHyde, Rank: 1, QueryIdx: 0, HydeIdx: 2},
		{CommentID: "B", Route: RouteHyde, Rank: 2, QueryIdx: 0, HydeIdx: 1},
		{CommentID: "B", Route: RouteHyde, Rank: 2, QueryIdx: 0, HydeIdx: 0},
	}
	deduped := dedupeHydeHits(hits)

	require.Len(t, deduped, 2)
	assert.Equal(t, "A", deduped[0].CommentID)
	assert.Equal(t, 1, deduped[0].Rank, "the best rank across hypotheses survives")
	assert.Equal(t, 2, deduped[0].HydeIdx)
	assert.Equal(t, "B", deduped[1].CommentID)
	assert.Equal(t, 0, deduped[1].HydeIdx, "rank ties keep the lowest hypothesis index")
}

func TestRetrieve_TimingPopulated(t *testing.T) {
	comments := &fakeStore{hits: []vector.Hit{{ID: "A", Score: 0.9}}}
	r := NewRetriever(nil, comments, &fakeStore{}, &fakeSummaryStore{}, &fakeEmbedder{}, nil, testReviewTable(), nil)

	result, err := r.Retrieve(context.Background(), singleQuery(), intent.Constraints{},
		Options{EnableVector: true, PerRouteTopK: 10, FinalTopK: 10})
	require.NoError(t, err)
	assert.Greater(t, result.Timing.Total, 0.0)
	assert.GreaterOrEqual(t, result.Timing.Vector, 0.0)
	assert.Zero(t, result.Timing.BM25)
}
