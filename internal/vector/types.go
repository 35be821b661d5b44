// Package vector provides the dense-retrieval stores: the comment and
// reverse-query collections (remote DashVector-style HTTP or local
// HNSW), and the category-summary store.
package vector

import (
	"context"
	"fmt"
)

// Hit is a single nearest-neighbor match.
type Hit struct {
	// ID is the stored vector's identifier. For the comment collection
	// this is the comment_id; for the reverse-query collection it is a
	// synthetic-query id whose Fields carry the owning comment_id.
	ID string

	// Score is a similarity in [0,1], higher is closer.
	Score float64

	// Fields holds the metadata stored alongside the vector.
	Fields map[string]string
}

// Field returns a metadata field, or "" when absent.
func (h Hit) Field(name string) string {
	return h.Fields[name]
}

// Filter is a single equality constraint on a metadata field.
// A nil *Filter means no filtering.
type Filter struct {
	Field string
	Value string
}

// String renders the filter in the store's DSL: field = 'value'.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%s = '%s'", f.Field, f.Value)
}

// ConstraintFilter builds the room filter from detected constraints.
// An exact room type dominates a fuzzy one; both empty means nil.
func ConstraintFilter(roomType, fuzzyRoomType string) *Filter {
	if roomType != "" {
		return &Filter{Field: "room_type", Value: roomType}
	}
	if fuzzyRoomType != "" {
		return &Filter{Field: "fuzzy_room_type", Value: fuzzyRoomType}
	}
	return nil
}

// Store is the nearest-neighbor query contract shared by the comment
// and reverse-query collections. Implementations must be safe for
// concurrent queries.
type Store interface {
	Query(ctx context.Context, vec []float32, topK int, filter *Filter) ([]Hit, error)
}

// SummaryHit is one category summary recalled for a sub-query.
type SummaryHit struct {
	Category     string
	Keywords     []string
	SummaryText  string
	CommentCount int
	Score        float64
}

// SummaryStore answers a batch of sub-query embeddings with the top
// nResults category summaries per embedding, in input order.
type SummaryStore interface {
	Query(ctx context.Context, embeddings [][]float32, nResults int) ([][]SummaryHit, error)
}
