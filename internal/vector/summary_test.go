package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSummaryIndex(t *testing.T) *SummaryIndex {
	t.Helper()
	s := NewSummaryIndex(3)
	err := s.Build(
		[]SummaryDoc{
			{Category: "早餐", Keywords: []string{"丰盛", "品种"}, SummaryText: "早餐整体评价好", CommentCount: 120},
			{Category: "隔音", Keywords: []string{"噪音"}, SummaryText: "部分房间隔音一般", CommentCount: 45},
		},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
		},
	)
	require.NoError(t, err)
	return s
}

func TestSummaryIndex_QueryPerEmbedding(t *testing.T) {
	s := newTestSummaryIndex(t)

	results, err := s.Query(context.Background(), [][]float32{
		{0.9, 0.1, 0},
		{0.1, 0.9, 0},
	}, 1)
	require.NoError(t, err)
	require.Len(t, results, 2, "one result list per embedding, in input order")

	require.Len(t, results[0], 1)
	assert.Equal(t, "早餐", results[0][0].Category)
	assert.Equal(t, 120, results[0][0].CommentCount)

	require.Len(t, results[1], 1)
	assert.Equal(t, "隔音", results[1][0].Category)
}

func TestSummaryIndex_EmptyIndex(t *testing.T) {
	s := NewSummaryIndex(3)

	results, err := s.Query(context.Background(), [][]float32{{1, 0, 0}}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0])
}

func TestSummaryIndex_BuildLengthMismatch(t *testing.T) {
	s := NewSummaryIndex(3)
	err := s.Build([]SummaryDoc{{Category: "早餐"}}, nil)
	assert.Error(t, err)
}

func TestSummaryIndex_SaveLoadRoundTrip(t *testing.T) {
	s := newTestSummaryIndex(t)
	path := filepath.Join(t.TempDir(), "summary_store.gob")
	require.NoError(t, s.Save(path))

	loaded, err := LoadSummaryIndex(path)
	require.NoError(t, err)
	assert.Equal(t, s.Len(), loaded.Len())

	results, err := loaded.Query(context.Background(), [][]float32{{1, 0, 0}}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0], 1)
	assert.Equal(t, "早餐", results[0][0].Category)
	assert.Equal(t, []string{"丰盛", "品种"}, results[0][0].Keywords)
}
