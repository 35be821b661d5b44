// Package retrieval implements the five-route hybrid retriever and its
// weighted reciprocal-rank fusion.
package retrieval

import (
	"github.com/gardenhotel/reviewrag/internal/review"
)

// Route names as they appear in timing maps and route_ranks.
const (
	RouteBM25    = "bm25"
	RouteVector  = "vector"
	RouteReverse = "reverse"
	RouteHyde    = "hyde"
	RouteSummary = "summary"
)

// Hit is one route emission: a comment recalled at a 1-based rank
// within its (route, query_idx[, hyde_idx]) scope.
type Hit struct {
	CommentID string
	Route     string
	Rank      int
	QueryIdx  int
	// HydeIdx is the hypothesis index for the hyde route, -1 elsewhere.
	HydeIdx int
}

// RouteHitRef records one contributing hit under a candidate's
// route_ranks map.
type RouteHitRef struct {
	Rank     int  `json:"rank"`
	QueryIdx int  `json:"query_idx"`
	HydeIdx  *int `json:"hyde_idx,omitempty"`
}

// Candidate is the fused view of one review after RRF.
type Candidate struct {
	CommentID  string
	Text       string
	RRFScore   float64
	RRFRank    int
	RouteRanks map[string][]RouteHitRef
	Review     review.Review
}

// Summary is a merged category-summary hit. A category recalled by
// several sub-queries appears once, with every recalling query index.
type Summary struct {
	Category           string
	Keywords           []string
	SummaryText        string
	CommentCount       int
	RetrievedByQueries []int
}

// HydeTiming breaks the hyde route's latency down. Generation and
// Retrieval are the max across concurrent sub-queries; Total is the
// route's wall time. Seconds.
type HydeTiming struct {
	Total      float64 `json:"total"`
	Generation float64 `json:"generation"`
	Retrieval  float64 `json:"retrieval"`
}

// Timing is the retrieval stage's latency breakdown in seconds.
// Each of the vector, reverse, and summary figures includes the shared
// batch-embedding time exactly once.
type Timing struct {
	BM25      float64    `json:"bm25"`
	Vector    float64    `json:"vector"`
	Reverse   float64    `json:"reverse"`
	Hyde      HydeTiming `json:"hyde"`
	Summary   float64    `json:"summary"`
	RRFFusion float64    `json:"rrf_fusion"`
	Total     float64    `json:"total"`
}

// Result is everything one retrieval pass produces.
type Result struct {
	Candidates []Candidate
	Summaries  []Summary
	Timing     Timing
	// HydeLog maps query_idx to the hypothetical reviews generated for
	// that sub-query, for the references payload.
	HydeLog map[int][]string
}
