package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gardenhotel/reviewrag/internal/bm25"
	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
	"github.com/gardenhotel/reviewrag/internal/intent"
	"github.com/gardenhotel/reviewrag/internal/llm"
	"github.com/gardenhotel/reviewrag/internal/review"
	"github.com/gardenhotel/reviewrag/internal/vector"
)

// Options selects routes and sizes for one retrieval pass.
type Options struct {
	EnableBM25    bool
	EnableVector  bool
	EnableReverse bool
	EnableHyde    bool
	EnableSummary bool

	// PerRouteTopK is the recall depth of every route query.
	PerRouteTopK int

	// FinalTopK bounds the fused candidate list.
	FinalTopK int
}

// Retriever runs the enabled routes concurrently and fuses their
// comment hits. Summary hits bypass fusion and flow straight to the
// generator.
type Retriever struct {
	index     *bm25.Index
	comments  vector.Store
	reverse   vector.Store
	summaries vector.SummaryStore
	embedder  llm.Embedder
	hyde      *intent.HyDEGenerator
	reviews   *review.Table
	logger    *slog.Logger
}

// NewRetriever wires the retriever's stores and services.
func NewRetriever(
	index *bm25.Index,
	comments vector.Store,
	reverse vector.Store,
	summaries vector.SummaryStore,
	embedder llm.Embedder,
	hyde *intent.HyDEGenerator,
	reviews *review.Table,
	logger *slog.Logger,
) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		index:     index,
		comments:  comments,
		reverse:   reverse,
		summaries: summaries,
		embedder:  embedder,
		hyde:      hyde,
		reviews:   reviews,
		logger:    logger,
	}
}

// Retrieve fans out over the enabled routes for the given sub-queries
// and returns the fused candidates, summaries, timing, and HyDE log.
// A failed route contributes an empty hit list and a warning; at least
// one route must be enabled.
func (r *Retriever) Retrieve(ctx context.Context, subQueries []intent.SubQuery, constraints intent.Constraints, opts Options) (*Result, error) {
	if !opts.EnableBM25 && !opts.EnableVector && !opts.EnableReverse && !opts.EnableHyde && !opts.EnableSummary {
		return nil, ragerrors.New(ragerrors.ErrCodeNoRoutes, "at least one retrieval route must be enabled", nil)
	}

	start := time.Now()

	queries := make([]string, len(subQueries))
	weights := make([]float64, len(subQueries))
	for i, sq := range subQueries {
		queries[i] = sq.Query
		weights[i] = sq.Weight
	}

	// One batch embedding call shared by the vector, reverse, and
	// summary routes. Its elapsed time is charged to each consumer
	// route exactly once.
	var embeddings [][]float32
	var embedTime float64
	if opts.EnableVector || opts.EnableReverse || opts.EnableSummary {
		embedStart := time.Now()
		var err error
		embeddings, err = r.embedder.EmbedBatch(ctx, queries)
		embedTime = time.Since(embedStart).Seconds()
		if err != nil {
			r.logger.Warn("sub-query embedding failed, dense routes will be empty",
				slog.String("error", err.Error()))
			embeddings = nil
		}
	}

	filter := vector.ConstraintFilter(constraints.RoomType, constraints.FuzzyRoomType)

	var (
		bm25Hits, vectorHits, reverseHits, hydeHits []Hit
		summaries                                   []Summary
		hydeLog                                     map[int][]string
		timing                                      Timing
	)

	g, gctx := errgroup.WithContext(ctx)
	if opts.EnableBM25 {
		g.Go(func() error {
			routeStart := time.Now()
			bm25Hits = r.routeBM25(gctx, queries, opts.PerRouteTopK)
			timing.BM25 = time.Since(routeStart).Seconds()
			return nil
		})
	}
	if opts.EnableVector {
		g.Go(func() error {
			routeStart := time.Now()
			vectorHits = r.routeDense(gctx, r.comments, RouteVector, embeddings, opts.PerRouteTopK, filter)
			timing.Vector = time.Since(routeStart).Seconds() + embedTime
			return nil
		})
	}
	if opts.EnableReverse {
		g.Go(func() error {
			routeStart := time.Now()
			reverseHits = r.routeReverse(gctx, embeddings, opts.PerRouteTopK, filter)
			timing.Reverse = time.Since(routeStart).Seconds() + embedTime
			return nil
		})
	}
	if opts.EnableHyde {
		g.Go(func() error {
			hydeHits, hydeLog, timing.Hyde = r.routeHyde(gctx, queries, opts.PerRouteTopK, filter)
			return nil
		})
	}
	if opts.EnableSummary {
		g.Go(func() error {
			routeStart := time.Now()
			summaries = r.routeSummary(gctx, embeddings)
			timing.Summary = time.Since(routeStart).Seconds() + embedTime
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	allHits := make([]Hit, 0, len(bm25Hits)+len(vectorHits)+len(reverseHits)+len(hydeHits))
	allHits = append(allHits, bm25Hits...)
	allHits = append(allHits, vectorHits...)
	allHits = append(allHits, reverseHits...)
	allHits = append(allHits, hydeHits...)

	fusionStart := time.Now()
	fused := FuseRRF(allHits, weights, RRFK)
	candidates := r.buildCandidates(fused, allHits, opts.FinalTopK)
	timing.RRFFusion = time.Since(fusionStart).Seconds()
	timing.Total = time.Since(start).Seconds()

	if hydeLog == nil {
		hydeLog = map[int][]string{}
	}
	if summaries == nil {
		summaries = []Summary{}
	}

	return &Result{
		Candidates: candidates,
		Summaries:  summaries,
		Timing:     timing,
		HydeLog:    hydeLog,
	}, nil
}

// buildCandidates resolves the top fused documents against the review
// table and attaches every route hit that contributed to each one.
// Fused IDs missing from the table are skipped with a warning; rank
// numbering stays as fused.
func (r *Retriever) buildCandidates(fused []FusedDoc, allHits []Hit, finalTopK int) []Candidate {
	hitsByID := make(map[string]map[string][]RouteHitRef)
	for _, h := range allHits {
		byRoute, ok := hitsByID[h.CommentID]
		if !ok {
			byRoute = make(map[string][]RouteHitRef)
			hitsByID[h.CommentID] = byRoute
		}
		ref := RouteHitRef{Rank: h.Rank, QueryIdx: h.QueryIdx}
		if h.Route == RouteHyde {
			hydeIdx := h.HydeIdx
			ref.HydeIdx = &hydeIdx
		}
		byRoute[h.Route] = append(byRoute[h.Route], ref)
	}

	candidates := make([]Candidate, 0, finalTopK)
	for _, doc := range fused {
		if len(candidates) == finalTopK {
			break
		}
		rev, ok := r.reviews.Get(doc.CommentID)
		if !ok {
			r.logger.Warn("fused comment missing from review table",
				slog.String("comment_id", doc.CommentID))
			continue
		}
		candidates = append(candidates, Candidate{
			CommentID:  doc.CommentID,
			Text:       rev.Text,
			RRFScore:   doc.Score,
			RRFRank:    doc.Rank,
			RouteRanks: hitsByID[doc.CommentID],
			Review:     *rev,
		})
	}
	return candidates
}

func (r *Retriever) routeBM25(ctx context.Context, queries []string, topK int) []Hit {
	perQuery := make([][]Hit, len(queries))
	g, _ := errgroup.WithContext(ctx)
	for queryIdx, query := range queries {
		g.Go(func() error {
			results := r.index.Search(query, topK)
			hits := make([]Hit, 0, len(results))
			for i, res := range results {
				hits = append(hits, Hit{
					CommentID: res.CommentID,
					Route:     RouteBM25,
					Rank:      i + 1,
					QueryIdx:  queryIdx,
					HydeIdx:   -1,
				})
			}
			perQuery[queryIdx] = hits
			return nil
		})
	}
	_ = g.Wait()
	return flatten(perQuery)
}

// routeDense is the shared sub-query fan-out for stores whose hit IDs
// are comment IDs directly (the vector and hyde routes).
func (r *Retriever) routeDense(ctx context.Context, store vector.Store, route string, embeddings [][]float32, topK int, filter *vector.Filter) []Hit {
	perQuery := make([][]Hit, len(embeddings))
	g, gctx := errgroup.WithContext(ctx)
	for queryIdx, emb := range embeddings {
		g.Go(func() error {
			hits, err := store.Query(gctx, emb, topK, filter)
			if err != nil {
				r.logger.Warn("dense route query failed",
					slog.String("route", route),
					slog.Int("query_idx", queryIdx),
					slog.String("error", err.Error()))
				return nil
			}
			converted := make([]Hit, 0, len(hits))
			for i, h := range hits {
				converted = append(converted, Hit{
					CommentID: h.ID,
					Route:     route,
					Rank:      i + 1,
					QueryIdx:  queryIdx,
					HydeIdx:   -1,
				})
			}
			perQuery[queryIdx] = converted
			return nil
		})
	}
	_ = g.Wait()
	return flatten(perQuery)
}

// routeReverse queries the reverse-query collection and maps each hit
// back to its owning comment through the stored comment_id field.
func (r *Retriever) routeReverse(ctx context.Context, embeddings [][]float32, topK int, filter *vector.Filter) []Hit {
	perQuery := make([][]Hit, len(embeddings))
	g, gctx := errgroup.WithContext(ctx)
	for queryIdx, emb := range embeddings {
		g.Go(func() error {
			hits, err := r.reverse.Query(gctx, emb, topK, filter)
			if err != nil {
				r.logger.Warn("reverse route query failed",
					slog.Int("query_idx", queryIdx),
					slog.String("error", err.Error()))
				return nil
			}
			converted := make([]Hit, 0, len(hits))
			for i, h := range hits {
				commentID := h.Field("comment_id")
				if commentID == "" {
					r.logger.Warn("reverse hit without comment_id", slog.String("id", h.ID))
					continue
				}
				converted = append(converted, Hit{
					CommentID: commentID,
					Route:     RouteReverse,
					Rank:      i + 1,
					QueryIdx:  queryIdx,
					HydeIdx:   -1,
				})
			}
			perQuery[queryIdx] = converted
			return nil
		})
	}
	_ = g.Wait()
	return flatten(perQuery)
}

// routeHyde runs generate -> embed -> search per sub-query, then
// deduplicates within the sub-query so one query's hypotheses cannot
// multiply its fusion votes.
func (r *Retriever) routeHyde(ctx context.Context, queries []string, topK int, filter *vector.Filter) ([]Hit, map[int][]string, HydeTiming) {
	routeStart := time.Now()

	perQuery := make([][]Hit, len(queries))
	hypotheses := make([][]string, len(queries))
	genTimes := make([]float64, len(queries))
	retTimes := make([]float64, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for queryIdx, query := range queries {
		g.Go(func() error {
			genStart := time.Now()
			responses := r.hyde.Generate(gctx, query)
			genTimes[queryIdx] = time.Since(genStart).Seconds()
			hypotheses[queryIdx] = responses

			retStart := time.Now()
			defer func() { retTimes[queryIdx] = time.Since(retStart).Seconds() }()

			embeddings, err := r.embedder.EmbedBatch(gctx, responses)
			if err != nil {
				r.logger.Warn("hyde hypothesis embedding failed",
					slog.Int("query_idx", queryIdx),
					slog.String("error", err.Error()))
				return nil
			}

			perHypothesis := make([][]Hit, len(embeddings))
			hg, hctx := errgroup.WithContext(gctx)
			for hydeIdx, emb := range embeddings {
				hg.Go(func() error {
					hits, err := r.comments.Query(hctx, emb, topK, filter)
					if err != nil {
						r.logger.Warn("hyde route query failed",
							slog.Int("query_idx", queryIdx),
							slog.Int("hyde_idx", hydeIdx),
							slog.String("error", err.Error()))
						return nil
					}
					converted := make([]Hit, 0, len(hits))
					for i, h := range hits {
						converted = append(converted, Hit{
							CommentID: h.ID,
							Route:     RouteHyde,
							Rank:      i + 1,
							QueryIdx:  queryIdx,
							HydeIdx:   hydeIdx,
						})
					}
					perHypothesis[hydeIdx] = converted
					return nil
				})
			}
			_ = hg.Wait()

			perQuery[queryIdx] = dedupeHydeHits(flatten(perHypothesis))
			return nil
		})
	}
	_ = g.Wait()

	hydeLog := make(map[int][]string, len(queries))
	for queryIdx, responses := range hypotheses {
		if responses != nil {
			hydeLog[queryIdx] = responses
		}
	}

	timing := HydeTiming{
		Total:      time.Since(routeStart).Seconds(),
		Generation: maxFloat(genTimes),
		Retrieval:  maxFloat(retTimes),
	}
	return flatten(perQuery), hydeLog, timing
}

// dedupeHydeHits keeps, per comment, only the best (lowest) rank among
// the sub-query's hypotheses. Ties keep the lowest hyde_idx so the
// outcome does not depend on goroutine completion order.
func dedupeHydeHits(hits []Hit) []Hit {
	best := make(map[string]Hit)
	for _, h := range hits {
		prev, seen := best[h.CommentID]
		if !seen || h.Rank < prev.Rank || (h.Rank == prev.Rank && h.HydeIdx < prev.HydeIdx) {
			best[h.CommentID] = h
		}
	}
	deduped := make([]Hit, 0, len(best))
	for _, h := range best {
		deduped = append(deduped, h)
	}
	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Rank != deduped[j].Rank {
			return deduped[i].Rank < deduped[j].Rank
		}
		return deduped[i].CommentID < deduped[j].CommentID
	})
	return deduped
}

// routeSummary recalls the best category per sub-query and merges by
// category, recording which sub-queries recalled each one.
func (r *Retriever) routeSummary(ctx context.Context, embeddings [][]float32) []Summary {
	if len(embeddings) == 0 {
		return []Summary{}
	}
	perQuery, err := r.summaries.Query(ctx, embeddings, 1)
	if err != nil {
		r.logger.Warn("summary route query failed", slog.String("error", err.Error()))
		return []Summary{}
	}

	merged := make(map[string]*Summary)
	order := make([]string, 0, len(perQuery))
	for queryIdx, hits := range perQuery {
		if len(hits) == 0 {
			continue
		}
		hit := hits[0]
		s, ok := merged[hit.Category]
		if !ok {
			s = &Summary{
				Category:     hit.Category,
				Keywords:     hit.Keywords,
				SummaryText:  hit.SummaryText,
				CommentCount: hit.CommentCount,
			}
			merged[hit.Category] = s
			order = append(order, hit.Category)
		}
		s.RetrievedByQueries = append(s.RetrievedByQueries, queryIdx)
	}

	summaries := make([]Summary, 0, len(order))
	for _, category := range order {
		summaries = append(summaries, *merged[category])
	}
	return summaries
}

func flatten(groups [][]Hit) []Hit {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	out := make([]Hit, 0, total)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func maxFloat(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}
