// Package ranking implements the multi-factor ranker: cross-encoder
// relevance fused with quality, length, engagement, and recency
// features, with time-sensitivity-driven recency decay.
package ranking

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/gardenhotel/reviewrag/internal/intent"
	"github.com/gardenhotel/reviewrag/internal/llm"
	"github.com/gardenhotel/reviewrag/internal/retrieval"
)

// Config holds the ranker's weights, decay parameters, and feature
// normalization divisors. The divisors come from corpus statistics
// (log of the corpus maxima) and rarely need changing.
type Config struct {
	WeightRelevance float64
	WeightQuality   float64
	WeightLength    float64
	WeightReview    float64
	WeightUseful    float64
	WeightRecency   float64

	BaseDecay    float64
	ImpliedBoost float64
	ClearBoost   float64
	HalfLifeDays float64

	LengthDivisor float64
	ReviewDivisor float64
	UsefulDivisor float64
}

// DefaultConfig returns the production weight and decay set.
func DefaultConfig() Config {
	return Config{
		WeightRelevance: 0.40,
		WeightQuality:   0.25,
		WeightLength:    0.05,
		WeightReview:    0.05,
		WeightUseful:    0.05,
		WeightRecency:   0.20,
		BaseDecay:       0.5,
		ImpliedBoost:    0.5,
		ClearBoost:      0.5,
		HalfLifeDays:    180,
		LengthDivisor:   7.51,
		ReviewDivisor:   6.32,
		UsefulDivisor:   3.64,
	}
}

// FeatureScores are the per-candidate normalized feature values that
// went into the final score.
type FeatureScores struct {
	Relevance      float64 `json:"relevance"`
	Quality        float64 `json:"quality"`
	LogCommentLen  float64 `json:"log_comment_len"`
	LogReviewCount float64 `json:"log_review_count"`
	LogUsefulCount float64 `json:"log_useful_count"`
	Recency        float64 `json:"recency"`
}

// RankedCandidate extends a retrieval candidate with rerank and final
// scoring.
type RankedCandidate struct {
	retrieval.Candidate

	RerankScore   float64
	RerankRank    int
	FinalScore    float64
	FinalRank     int
	FeatureScores FeatureScores
}

// Timing is the ranking stage's latency breakdown in seconds.
type Timing struct {
	Total   float64 `json:"total"`
	Rerank  float64 `json:"rerank"`
	Scoring float64 `json:"scoring"`
}

// Ranker scores and orders candidates.
type Ranker struct {
	reranker llm.Reranker
	config   Config
	logger   *slog.Logger
}

// NewRanker creates a ranker with the given reranker and config.
func NewRanker(reranker llm.Reranker, config Config, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{reranker: reranker, config: config, logger: logger}
}

// Rank reranks the candidates against the query, blends the feature
// scores, and returns the top topK in final order. An empty candidate
// list yields an empty result with zero timing. A rerank failure is an
// error: without relevance the blend is meaningless.
func (r *Ranker) Rank(ctx context.Context, query string, candidates []retrieval.Candidate, timeSensitivity string, topK int, today time.Time) ([]RankedCandidate, Timing, error) {
	if len(candidates) == 0 {
		return []RankedCandidate{}, Timing{}, nil
	}

	start := time.Now()

	rerankStart := time.Now()
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Text
	}
	relevanceMap, err := r.reranker.Rerank(ctx, query, documents, len(documents))
	rerankTime := time.Since(rerankStart).Seconds()
	if err != nil {
		return nil, Timing{}, err
	}

	scoringStart := time.Now()
	decay := r.decay(timeSensitivity)

	ranked := make([]RankedCandidate, len(candidates))
	for i, c := range candidates {
		relevance := relevanceMap[i]
		quality := c.Review.QualityScore / 10.0
		length := math.Log(float64(utf8.RuneCountInString(c.Text))+1) / r.config.LengthDivisor
		reviews := math.Log(float64(c.Review.ReviewCount)+1) / r.config.ReviewDivisor
		useful := math.Log(float64(c.Review.UsefulCount)+1) / r.config.UsefulDivisor
		recency := math.Exp(-decay * float64(daysAgo(today, c.Review.PublishDate)) / r.config.HalfLifeDays)

		features := FeatureScores{
			Relevance:      relevance,
			Quality:        quality,
			LogCommentLen:  length,
			LogReviewCount: reviews,
			LogUsefulCount: useful,
			Recency:        recency,
		}
		ranked[i] = RankedCandidate{
			Candidate:   c,
			RerankScore: relevance,
			FinalScore: r.config.WeightRelevance*relevance +
				r.config.WeightQuality*quality +
				r.config.WeightLength*length +
				r.config.WeightReview*reviews +
				r.config.WeightUseful*useful +
				r.config.WeightRecency*recency,
			FeatureScores: features,
		}
	}

	// Rerank ranks are assigned over the full candidate list, before
	// the final-score cut.
	byRelevance := make([]*RankedCandidate, len(ranked))
	for i := range ranked {
		byRelevance[i] = &ranked[i]
	}
	sort.Slice(byRelevance, func(i, j int) bool {
		if byRelevance[i].RerankScore != byRelevance[j].RerankScore {
			return byRelevance[i].RerankScore > byRelevance[j].RerankScore
		}
		return byRelevance[i].CommentID < byRelevance[j].CommentID
	})
	for rank, c := range byRelevance {
		c.RerankRank = rank + 1
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		if ranked[i].RerankScore != ranked[j].RerankScore {
			return ranked[i].RerankScore > ranked[j].RerankScore
		}
		return ranked[i].CommentID < ranked[j].CommentID
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	for i := range ranked {
		ranked[i].FinalRank = i + 1
	}

	timing := Timing{
		Total:   time.Since(start).Seconds(),
		Rerank:  rerankTime,
		Scoring: time.Since(scoringStart).Seconds(),
	}
	return ranked, timing, nil
}

// decay maps time sensitivity onto the recency decay rate: stronger
// sensitivity decays old reviews faster.
func (r *Ranker) decay(timeSensitivity string) float64 {
	decay := r.config.BaseDecay
	switch timeSensitivity {
	case intent.TimeSensitivityImplied:
		decay += r.config.ImpliedBoost
	case intent.TimeSensitivityClear:
		decay += r.config.ImpliedBoost + r.config.ClearBoost
	}
	return decay
}

// daysAgo returns the whole days between publish and today, clamped to
// zero for reviews dated in the future.
func daysAgo(today, publish time.Time) int {
	days := int(today.Sub(publish).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
