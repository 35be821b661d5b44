package bm25

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := NewTokenizer("")
	require.NoError(t, err)
	return tok
}

func TestSearch_SingleTerm(t *testing.T) {
	tok := newTestTokenizer(t)
	tok.SetStopwords([]string{"很好"})
	idx := New(tok)
	idx.Build(map[string]string{
		"A": "花园 早餐 很好",
		"B": "早餐 一般",
	})

	results := idx.Search("早餐", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].CommentID, "equal scores break ties by comment ID")
	assert.Equal(t, "B", results[1].CommentID)
	assert.InDelta(t, results[0].Score, results[1].Score, 1e-9)
}

func TestSearch_TermFrequencyWins(t *testing.T) {
	tok := newTestTokenizer(t)
	idx := New(tok)
	idx.Build(map[string]string{
		"A": "早餐早餐",
		"B": "早餐一般",
	})

	results := idx.Search("早餐", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].CommentID, "higher term frequency scores higher")
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_DuplicateQueryTokensAccumulate(t *testing.T) {
	tok := newTestTokenizer(t)
	idx := New(tok)
	idx.Build(map[string]string{
		"A": "早餐很棒",
		"B": "位置很棒",
	})

	single := idx.Search("早餐", 10)
	double := idx.Search("早餐 早餐", 10)
	require.Len(t, single, 1)
	require.Len(t, double, 1)
	assert.InDelta(t, single[0].Score*2, double[0].Score, 1e-9,
		"a repeated query token contributes once per occurrence")
}

func TestSearch_UnknownTermEmpty(t *testing.T) {
	tok := newTestTokenizer(t)
	idx := New(tok)
	idx.Build(map[string]string{"A": "早餐不错"})

	assert.Empty(t, idx.Search("泳池", 10))
	assert.Empty(t, idx.Search("", 10))
	assert.Empty(t, idx.Search("早餐", 0))
}

func TestSearch_TopKCut(t *testing.T) {
	tok := newTestTokenizer(t)
	idx := New(tok)
	idx.Build(map[string]string{
		"A": "早餐",
		"B": "早餐 早餐",
		"C": "早餐 不错",
	})

	results := idx.Search("早餐", 2)
	assert.Len(t, results, 2)
}

func TestSearch_EmptyIndex(t *testing.T) {
	tok := newTestTokenizer(t)
	idx := New(tok)
	idx.Build(map[string]string{})

	assert.Empty(t, idx.Search("早餐", 10))
	assert.Equal(t, 0, idx.Stats().Docs)
}

func TestIndex_SaveLoadRoundTrip(t *testing.T) {
	tok := newTestTokenizer(t)
	tok.SetStopwords([]string{"的", "了"})
	idx := New(tok)
	idx.Build(map[string]string{
		"A": "酒店的早餐很好吃",
		"B": "房间隔音不太好",
		"C": "早餐一般 服务态度好",
	})

	path := filepath.Join(t.TempDir(), "inverted_index.gob")
	require.NoError(t, idx.Save(path))

	loadTok := newTestTokenizer(t)
	loaded, err := Load(path, loadTok)
	require.NoError(t, err)

	assert.Equal(t, idx.Stats(), loaded.Stats())
	assert.ElementsMatch(t, tok.Stopwords(), loadTok.Stopwords(),
		"stopwords travel with the blob so query tokenization matches build time")

	for _, query := range []string{"早餐", "隔音", "服务 早餐", "不存在的词"} {
		assert.Equal(t, idx.Search(query, 10), loaded.Search(query, 10),
			"query %q must score identically after reload", query)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	tok := newTestTokenizer(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.gob"), tok)
	assert.Error(t, err)
}
