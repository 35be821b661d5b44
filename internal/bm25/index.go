package bm25

import (
	"math"
	"sort"
)

// BM25 constants. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Result is a single BM25 search hit.
type Result struct {
	CommentID string
	Score     float64
}

// Stats describes an index for diagnostics.
type Stats struct {
	Terms        int
	Docs         int
	AvgDocLength float64
}

// Index is an inverted index with Okapi BM25 scoring.
// It is built offline (or loaded from a blob) and read-only during
// serving, so Search requires no locking.
type Index struct {
	k1 float64
	b  float64

	tok *Tokenizer

	postings     map[string]map[string]int // term -> comment_id -> tf
	docLengths   map[string]int            // comment_id -> token count
	avgDocLength float64
	numDocs      int
}

// Option configures an Index.
type Option func(*Index)

// WithK1 overrides the k1 saturation constant.
func WithK1(k1 float64) Option {
	return func(idx *Index) { idx.k1 = k1 }
}

// WithB overrides the b length-normalization constant.
func WithB(b float64) Option {
	return func(idx *Index) { idx.b = b }
}

// New creates an empty index using the given tokenizer.
func New(tok *Tokenizer, opts ...Option) *Index {
	idx := &Index{
		k1:         DefaultK1,
		b:          DefaultB,
		tok:        tok,
		postings:   make(map[string]map[string]int),
		docLengths: make(map[string]int),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Build indexes the given documents (comment_id -> text), replacing any
// previous contents.
func (idx *Index) Build(documents map[string]string) {
	idx.postings = make(map[string]map[string]int)
	idx.docLengths = make(map[string]int, len(documents))
	idx.numDocs = len(documents)

	totalLength := 0
	for docID, text := range documents {
		tokens := idx.tok.Tokenize(text)
		idx.docLengths[docID] = len(tokens)
		totalLength += len(tokens)

		for _, term := range tokens {
			m, ok := idx.postings[term]
			if !ok {
				m = make(map[string]int)
				idx.postings[term] = m
			}
			m[docID]++
		}
	}

	if idx.numDocs > 0 {
		idx.avgDocLength = float64(totalLength) / float64(idx.numDocs)
	} else {
		idx.avgDocLength = 0
	}
}

// Search returns the top-K documents by BM25 score, descending; ties
// break by comment ID ascending. An empty token list after filtering
// returns an empty result set.
func (idx *Index) Search(query string, topK int) []Result {
	tokens := idx.tok.Tokenize(query)
	if len(tokens) == 0 || idx.numDocs == 0 || topK <= 0 {
		return nil
	}

	// IDF per distinct term; terms absent from the index contribute zero.
	idf := make(map[string]float64)
	for _, term := range tokens {
		if _, seen := idf[term]; seen {
			continue
		}
		if m, ok := idx.postings[term]; ok {
			df := float64(len(m))
			n := float64(idx.numDocs)
			idf[term] = math.Max(0, math.Log((n-df+0.5)/(df+0.5)+1))
		}
	}

	scores := make(map[string]float64)
	for _, term := range tokens {
		m, ok := idx.postings[term]
		if !ok {
			continue
		}
		for docID, tf := range m {
			docLen := float64(idx.docLengths[docID])
			norm := 1 - idx.b + idx.b*(docLen/idx.avgDocLength)
			tfF := float64(tf)
			scores[docID] += idf[term] * (tfF * (idx.k1 + 1)) / (tfF + idx.k1*norm)
		}
	}

	results := make([]Result, 0, len(scores))
	for docID, score := range scores {
		results = append(results, Result{CommentID: docID, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CommentID < results[j].CommentID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Tokenizer returns the index's tokenizer.
func (idx *Index) Tokenizer() *Tokenizer {
	return idx.tok
}

// Stats returns index statistics.
func (idx *Index) Stats() Stats {
	return Stats{
		Terms:        len(idx.postings),
		Docs:         idx.numDocs,
		AvgDocLength: idx.avgDocLength,
	}
}
