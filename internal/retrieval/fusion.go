package retrieval

import "sort"

// RRFK is the reciprocal-rank-fusion smoothing constant.
const RRFK = 60

// FusedDoc is a comment with its fused score and 1-based rank over the
// whole fused set.
type FusedDoc struct {
	CommentID string
	Score     float64
	Rank      int
}

// FuseRRF combines route hits with weighted reciprocal-rank fusion:
// each hit contributes weight[query_idx] / (k + rank). The result is
// sorted by score descending, ties broken by comment ID ascending,
// with ranks assigned 1..N.
func FuseRRF(hits []Hit, weights []float64, k int) []FusedDoc {
	scores := make(map[string]float64)
	for _, h := range hits {
		if h.QueryIdx < 0 || h.QueryIdx >= len(weights) {
			continue
		}
		scores[h.CommentID] += weights[h.QueryIdx] / float64(k+h.Rank)
	}

	fused := make([]FusedDoc, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, FusedDoc{CommentID: id, Score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].CommentID < fused[j].CommentID
	})
	for i := range fused {
		fused[i].Rank = i + 1
	}
	return fused
}
