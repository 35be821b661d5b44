package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

// LocalStoreConfig configures an embedded HNSW collection.
type LocalStoreConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

// LocalStore is an embedded HNSW-backed Store. It serves as a local
// stand-in for a remote collection: same query contract, with filters
// applied against per-vector metadata after the graph search.
type LocalStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config LocalStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	fields  map[string]map[string]string
	nextKey uint64
}

var _ Store = (*LocalStore)(nil)

// localStoreMetadata is the gob sidecar next to the exported graph.
type localStoreMetadata struct {
	IDMap   map[string]uint64
	Fields  map[string]map[string]string
	NextKey uint64
	Config  LocalStoreConfig
}

// NewLocalStore creates an empty embedded collection.
func NewLocalStore(cfg LocalStoreConfig) *LocalStore {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &LocalStore{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		fields: make(map[string]map[string]string),
	}
}

// Add inserts vectors with their IDs and metadata fields. Re-adding an
// existing ID replaces it via lazy deletion of the old graph node.
func (s *LocalStore) Add(ids []string, vectors [][]float32, fields []map[string]string) error {
	if len(ids) != len(vectors) || (fields != nil && len(fields) != len(ids)) {
		return ragerrors.New(ragerrors.ErrCodeInvalidInput, "ids, vectors and fields length mismatch", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range ids {
		if len(vectors[i]) != s.config.Dimensions {
			return ragerrors.New(ragerrors.ErrCodeInvalidInput, "vector dimension mismatch", nil).
				WithDetail("id", id)
		}

		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
		if fields != nil {
			s.fields[id] = fields[i]
		}
	}
	return nil
}

// Count returns the number of live vectors.
func (s *LocalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Query searches the graph and applies the filter to hit metadata.
// Filtered searches over-fetch from the graph so that post-filtering
// still yields up to topK hits.
func (s *LocalStore) Query(ctx context.Context, vec []float32, topK int, filter *Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeVectorQuery, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(vec) != s.config.Dimensions {
		return nil, ragerrors.New(ragerrors.ErrCodeVectorQuery, "query dimension mismatch", nil)
	}
	if s.graph.Len() == 0 || topK <= 0 {
		return []Hit{}, nil
	}

	fetch := topK
	if filter != nil {
		// Metadata filtering happens after the graph search, so pull a
		// wider candidate set; the graph caps this at its own size.
		fetch = topK * 10
	}

	nodes := s.graph.Search(normalized(vec), fetch)

	hits := make([]Hit, 0, topK)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		meta := s.fields[id]
		if filter != nil && meta[filter.Field] != filter.Value {
			continue
		}
		distance := s.graph.Distance(normalized(vec), node.Value)
		hits = append(hits, Hit{
			ID:     id,
			Score:  1 - float64(distance),
			Fields: meta,
		})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// Save persists the graph and its metadata sidecar under path
// (path and path+".meta"), each through a temp file and rename.
func (s *LocalStore) Save(path string) error {
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
	meta := localStoreMetadata{
		IDMap:   s.idMap,
		Fields:  s.fields,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
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

// LoadLocalStore restores a store persisted by Save.
func LoadLocalStore(path string) (*LocalStore, error) {
	mf, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexNotFound, err)
		}
		return nil, ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	defer func() { _ = mf.Close() }()

	var meta localStoreMetadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexCorrupt, err)
	}

	s := NewLocalStore(meta.Config)
	s.idMap = meta.IDMap
	s.fields = meta.Fields
	s.nextKey = meta.NextKey
	if s.fields == nil {
		s.fields = make(map[string]map[string]string)
	}
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexNotFound, err)
		}
		return nil, ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	defer func() { _ = f.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexCorrupt, err)
	}
	return s, nil
}

func normalized(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	normalizeInPlace(out)
	return out
}

func normalizeInPlace(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
