package rag

import (
	"fmt"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
	"github.com/gardenhotel/reviewrag/internal/ranking"
)

// Options are the per-request pipeline dials.
type Options struct {
	RouteTopK     int
	RetrievalTopK int
	RankingTopK   int

	EnableExpansion  bool
	EnableBM25       bool
	EnableVector     bool
	EnableReverse    bool
	EnableHyde       bool
	EnableSummary    bool
	EnableRanking    bool
	EnableGeneration bool

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
}

// DefaultOptions returns the non-streaming defaults: every stage on.
func DefaultOptions() Options {
	rc := ranking.DefaultConfig()
	return Options{
		RouteTopK:        150,
		RetrievalTopK:    100,
		RankingTopK:      10,
		EnableExpansion:  true,
		EnableBM25:       true,
		EnableVector:     true,
		EnableReverse:    true,
		EnableHyde:       true,
		EnableSummary:    true,
		EnableRanking:    true,
		EnableGeneration: true,
		WeightRelevance:  rc.WeightRelevance,
		WeightQuality:    rc.WeightQuality,
		WeightLength:     rc.WeightLength,
		WeightReview:     rc.WeightReview,
		WeightUseful:     rc.WeightUseful,
		WeightRecency:    rc.WeightRecency,
		BaseDecay:        rc.BaseDecay,
		ImpliedBoost:     rc.ImpliedBoost,
		ClearBoost:       rc.ClearBoost,
		HalfLifeDays:     rc.HalfLifeDays,
	}
}

// DefaultStreamOptions returns the streaming defaults. HyDE is off by
// default when streaming: its generation step sits on the latency
// path before the first token.
func DefaultStreamOptions() Options {
	opts := DefaultOptions()
	opts.EnableHyde = false
	return opts
}

// OptionsPatch is the wire form of the request's options object. Nil
// fields keep the defaults.
type OptionsPatch struct {
	RouteTopK     *int `json:"route_topk"`
	RetrievalTopK *int `json:"retrieval_topk"`
	RankingTopK   *int `json:"ranking_topk"`

	EnableExpansion  *bool `json:"enable_expansion"`
	EnableBM25       *bool `json:"enable_bm25"`
	EnableVector     *bool `json:"enable_vector"`
	EnableReverse    *bool `json:"enable_reverse"`
	EnableHyde       *bool `json:"enable_hyde"`
	EnableSummary    *bool `json:"enable_summary"`
	EnableRanking    *bool `json:"enable_ranking"`
	EnableGeneration *bool `json:"enable_generation"`

	WeightRelevance *float64 `json:"w_relevance"`
	WeightQuality   *float64 `json:"w_quality"`
	WeightLength    *float64 `json:"w_length"`
	WeightReview    *float64 `json:"w_review"`
	WeightUseful    *float64 `json:"w_useful"`
	WeightRecency   *float64 `json:"w_recency"`

	BaseDecay    *float64 `json:"base_decay"`
	ImpliedBoost *float64 `json:"implied_boost"`
	ClearBoost   *float64 `json:"clear_boost"`
	HalfLifeDays *float64 `json:"half_life_days"`
}

// Apply overlays the patch onto opts.
func (p *OptionsPatch) Apply(opts *Options) {
	if p == nil {
		return
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}

	setInt(&opts.RouteTopK, p.RouteTopK)
	setInt(&opts.RetrievalTopK, p.RetrievalTopK)
	setInt(&opts.RankingTopK, p.RankingTopK)

	setBool(&opts.EnableExpansion, p.EnableExpansion)
	setBool(&opts.EnableBM25, p.EnableBM25)
	setBool(&opts.EnableVector, p.EnableVector)
	setBool(&opts.EnableReverse, p.EnableReverse)
	setBool(&opts.EnableHyde, p.EnableHyde)
	setBool(&opts.EnableSummary, p.EnableSummary)
	setBool(&opts.EnableRanking, p.EnableRanking)
	setBool(&opts.EnableGeneration, p.EnableGeneration)

	setFloat(&opts.WeightRelevance, p.WeightRelevance)
	setFloat(&opts.WeightQuality, p.WeightQuality)
	setFloat(&opts.WeightLength, p.WeightLength)
	setFloat(&opts.WeightReview, p.WeightReview)
	setFloat(&opts.WeightUseful, p.WeightUseful)
	setFloat(&opts.WeightRecency, p.WeightRecency)

	setFloat(&opts.BaseDecay, p.BaseDecay)
	setFloat(&opts.ImpliedBoost, p.ImpliedBoost)
	setFloat(&opts.ClearBoost, p.ClearBoost)
	setFloat(&opts.HalfLifeDays, p.HalfLifeDays)
}

// Validate rejects dial values the pipeline cannot run with.
func (o Options) Validate() error {
	if o.RouteTopK <= 0 || o.RetrievalTopK <= 0 || o.RankingTopK <= 0 {
		return ragerrors.New(ragerrors.ErrCodeInvalidOption,
			fmt.Sprintf("topk values must be positive: route=%d retrieval=%d ranking=%d",
				o.RouteTopK, o.RetrievalTopK, o.RankingTopK), nil)
	}
	if o.HalfLifeDays <= 0 {
		return ragerrors.New(ragerrors.ErrCodeInvalidOption, "half_life_days must be positive", nil)
	}
	if !o.EnableBM25 && !o.EnableVector && !o.EnableReverse && !o.EnableHyde && !o.EnableSummary {
		return ragerrors.New(ragerrors.ErrCodeNoRoutes, "at least one retrieval route must be enabled", nil)
	}
	return nil
}

// RankingConfig builds the per-request ranker config from the dials.
func (o Options) RankingConfig() ranking.Config {
	cfg := ranking.DefaultConfig()
	cfg.WeightRelevance = o.WeightRelevance
	cfg.WeightQuality = o.WeightQuality
	cfg.WeightLength = o.WeightLength
	cfg.WeightReview = o.WeightReview
	cfg.WeightUseful = o.WeightUseful
	cfg.WeightRecency = o.WeightRecency
	cfg.BaseDecay = o.BaseDecay
	cfg.ImpliedBoost = o.ImpliedBoost
	cfg.ClearBoost = o.ClearBoost
	cfg.HalfLifeDays = o.HalfLifeDays
	return cfg
}
