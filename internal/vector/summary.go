package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

// SummaryDoc is one category summary as stored, without a query score.
type SummaryDoc struct {
	Category     string
	Keywords     []string
	SummaryText  string
	CommentCount int
}

// SummaryIndex is an embedded SummaryStore: a small HNSW graph over
// category-summary embeddings. The corpus is a handful of categories,
// indexed once and read-only during serving.
type SummaryIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	docs  []SummaryDoc
	dims  int
}

var _ SummaryStore = (*SummaryIndex)(nil)

type summaryIndexMetadata struct {
	Docs []SummaryDoc
	Dims int
}

// NewSummaryIndex creates an empty summary index.
func NewSummaryIndex(dimensions int) *SummaryIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 32
	graph.Ml = 0.25
	return &SummaryIndex{graph: graph, dims: dimensions}
}

// Build indexes the documents with their embeddings, replacing any
// previous contents.
func (s *SummaryIndex) Build(docs []SummaryDoc, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return ragerrors.New(ragerrors.ErrCodeInvalidInput, "docs and embeddings length mismatch", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 32
	graph.Ml = 0.25

	for i, emb := range embeddings {
		if len(emb) != s.dims {
			return ragerrors.New(ragerrors.ErrCodeInvalidInput, "embedding dimension mismatch", nil).
				WithDetail("category", docs[i].Category)
		}
		graph.Add(hnsw.MakeNode(uint64(i), normalized(emb)))
	}

	s.graph = graph
	s.docs = append([]SummaryDoc(nil), docs...)
	return nil
}

// Len returns the number of indexed categories.
func (s *SummaryIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Query returns the top nResults summaries per embedding, in input
// order. An empty index yields empty result lists.
func (s *SummaryIndex) Query(ctx context.Context, embeddings [][]float32, nResults int) ([][]SummaryHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeVectorQuery, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([][]SummaryHit, len(embeddings))
	for i, emb := range embeddings {
		results[i] = []SummaryHit{}
		if len(s.docs) == 0 || nResults <= 0 {
			continue
		}
		if len(emb) != s.dims {
			return nil, ragerrors.New(ragerrors.ErrCodeVectorQuery, "query dimension mismatch", nil)
		}

		q := normalized(emb)
		for _, node := range s.graph.Search(q, nResults) {
			doc := s.docs[node.Key]
			results[i] = append(results[i], SummaryHit{
				Category:     doc.Category,
				Keywords:     doc.Keywords,
				SummaryText:  doc.SummaryText,
				CommentCount: doc.CommentCount,
				Score:        1 - float64(s.graph.Distance(q, node.Value)),
			})
		}
	}
	return results, nil
}

// Save persists the graph and document sidecar under path.
func (s *SummaryIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}

	metaTmp := path + ".meta.tmp"
	mf, err := os.Create(metaTmp)
	if err != nil {
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	if err := gob.NewEncoder(mf).Encode(summaryIndexMetadata{Docs: s.docs, Dims: s.dims}); err != nil {
		_ = mf.Close()
		_ = os.Remove(metaTmp)
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	if err := mf.Close(); err != nil {
		_ = os.Remove(metaTmp)
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	if err := os.Rename(metaTmp, path+".meta"); err != nil {
		_ = os.Remove(metaTmp)
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	return nil
}

// LoadSummaryIndex restores an index persisted by Save.
func LoadSummaryIndex(path string) (*SummaryIndex, error) {
	mf, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexNotFound, err)
		}
		return nil, ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	defer func() { _ = mf.Close() }()

	var meta summaryIndexMetadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexCorrupt, err)
	}

	s := NewSummaryIndex(meta.Dims)
	s.docs = meta.Docs

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexNotFound, err)
		}
		return nil, ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	defer func() { _ = f.Close() }()

	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexCorrupt, err)
	}
	return s, nil
}
