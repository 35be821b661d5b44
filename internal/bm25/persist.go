package bm25

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

// blob is the on-disk shape of a persisted index. Stopwords travel with
// the blob so query-time tokenization matches build time after a load.
type blob struct {
	Postings     map[string]map[string]int
	DocLengths   map[string]int
	AvgDocLength float64
	NumDocs      int
	K1           float64
	B            float64
	Stopwords    []string
}

// Save writes the index to a single blob at path. The write goes
// through a temp file and rename so a crash never leaves a truncated
// blob behind.
func (idx *Index) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bm25-*")
	if err != nil {
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	stopwords := idx.tok.Stopwords()
	sort.Strings(stopwords)

	enc := gob.NewEncoder(tmp)
	err = enc.Encode(blob{
		Postings:     idx.postings,
		DocLengths:   idx.docLengths,
		AvgDocLength: idx.avgDocLength,
		NumDocs:      idx.numDocs,
		K1:           idx.k1,
		B:            idx.b,
		Stopwords:    stopwords,
	})
	if err != nil {
		_ = tmp.Close()
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	if err := tmp.Close(); err != nil {
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	return nil
}

// Load reads a persisted index blob and binds it to the tokenizer,
// replacing the tokenizer's stopword set with the persisted one.
// The load is atomic: either the full structure is returned or an
// error, never a partially populated index.
func Load(path string, tok *Tokenizer) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexNotFound, err)
		}
		return nil, ragerrors.Wrap(ragerrors.ErrCodeStoreIO, err)
	}
	defer func() { _ = f.Close() }()

	var b blob
	if err := gob.NewDecoder(f).Decode(&b); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeIndexCorrupt, err)
	}

	tok.SetStopwords(b.Stopwords)
	return &Index{
		k1:           b.K1,
		b:            b.B,
		tok:          tok,
		postings:     b.Postings,
		docLengths:   b.DocLengths,
		avgDocLength: b.AvgDocLength,
		numDocs:      b.NumDocs,
	}, nil
}
