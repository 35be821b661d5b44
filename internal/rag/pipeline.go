// Package rag wires the full pipeline: query understanding, hybrid
// retrieval, multi-factor ranking, and answer generation, in both
// one-shot and streaming forms.
package rag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gardenhotel/reviewrag/internal/generate"
	"github.com/gardenhotel/reviewrag/internal/intent"
	"github.com/gardenhotel/reviewrag/internal/llm"
	"github.com/gardenhotel/reviewrag/internal/ranking"
	"github.com/gardenhotel/reviewrag/internal/retrieval"
)

// Turn is the previous conversation turn.
type Turn = intent.Turn

// DefaultToday anchors recency scoring when no reference date is
// configured. It matches the date the review corpus was snapshotted.
var DefaultToday = time.Date(2025, time.April, 17, 0, 0, 0, 0, time.UTC)

// Pipeline drives one query through the whole system. All members are
// read-only after construction; a Pipeline is safe for concurrent use.
type Pipeline struct {
	recognizer *intent.Recognizer
	detector   *intent.Detector
	expander   *intent.Expander
	retriever  *retrieval.Retriever
	reranker   llm.Reranker
	generator  *generate.Generator
	today      time.Time
	logger     *slog.Logger
}

// NewPipeline assembles a pipeline. A zero today falls back to
// DefaultToday.
func NewPipeline(
	recognizer *intent.Recognizer,
	detector *intent.Detector,
	expander *intent.Expander,
	retriever *retrieval.Retriever,
	reranker llm.Reranker,
	generator *generate.Generator,
	today time.Time,
	logger *slog.Logger,
) *Pipeline {
	if today.IsZero() {
		today = DefaultToday
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		recognizer: recognizer,
		detector:   detector,
		expander:   expander,
		retriever:  retriever,
		reranker:   reranker,
		generator:  generator,
		today:      today,
		logger:     logger,
	}
}

// understand runs the detector and expander, concurrently when
// expansion is enabled, and records their elapsed times.
func (p *Pipeline) understand(ctx context.Context, query string, expand bool, timing *Timing) (intent.Constraints, []intent.SubQuery) {
	var (
		constraints intent.Constraints
		expansion   []intent.SubQuery
	)
	if expand {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			start := time.Now()
			constraints = p.detector.Detect(ctx, query)
			timing.IntentDetection = time.Since(start).Seconds()
		}()
		go func() {
			defer wg.Done()
			start := time.Now()
			expansion = p.expander.Expand(ctx, query)
			timing.IntentExpansion = time.Since(start).Seconds()
		}()
		wg.Wait()
	} else {
		start := time.Now()
		constraints = p.detector.Detect(ctx, query)
		timing.IntentDetection = time.Since(start).Seconds()
	}
	return constraints, expansion
}

// retrieveAndRank runs retrieval and, when enabled, ranking. With
// ranking off the fused candidates pass through with their RRF order.
func (p *Pipeline) retrieveAndRank(ctx context.Context, query string, subQueries []intent.SubQuery, constraints intent.Constraints, opts Options, timing *Timing) ([]ranking.RankedCandidate, []retrieval.Summary, map[int][]string, error) {
	finalTopK := opts.RetrievalTopK
	if !opts.EnableRanking {
		finalTopK = opts.RankingTopK
	}

	result, err := p.retriever.Retrieve(ctx, subQueries, constraints, retrieval.Options{
		EnableBM25:    opts.EnableBM25,
		EnableVector:  opts.EnableVector,
		EnableReverse: opts.EnableReverse,
		EnableHyde:    opts.EnableHyde,
		EnableSummary: opts.EnableSummary,
		PerRouteTopK:  opts.RouteTopK,
		FinalTopK:     finalTopK,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	timing.Retrieval = newRetrievalTiming(result.Timing)

	if opts.EnableRanking {
		ranker := ranking.NewRanker(p.reranker, opts.RankingConfig(), p.logger)
		ranked, rankTiming, err := ranker.Rank(ctx, query, result.Candidates, constraints.TimeSensitivity, opts.RankingTopK, p.today)
		if err != nil {
			return nil, nil, nil, err
		}
		timing.Ranking = &rankTiming
		return ranked, result.Summaries, result.HydeLog, nil
	}

	timing.Ranking = &ranking.Timing{}
	passthrough := make([]ranking.RankedCandidate, len(result.Candidates))
	for i, c := range result.Candidates {
		passthrough[i] = ranking.RankedCandidate{Candidate: c}
	}
	return passthrough, result.Summaries, result.HydeLog, nil
}

// Query runs the pipeline end to end and returns the full envelope.
func (p *Pipeline) Query(ctx context.Context, query string, opts Options, history *Turn) (*QueryResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	totalStart := time.Now()
	var timing Timing

	recognitionStart := time.Now()
	needRetrieval, err := p.recognizer.Recognize(ctx, query, history)
	timing.IntentRecognition = time.Since(recognitionStart).Seconds()
	if err != nil {
		return nil, err
	}

	queryProcessingStart := time.Now()
	var (
		constraints intent.Constraints
		expansion   []intent.SubQuery
	)
	if needRetrieval {
		constraints, expansion = p.understand(ctx, query, opts.EnableExpansion, &timing)
	}
	timing.QueryProcessingTotal = timing.IntentRecognition + time.Since(queryProcessingStart).Seconds()

	if !needRetrieval {
		response := ""
		if opts.EnableGeneration {
			firstTokenBase := time.Since(totalStart).Seconds()
			text, metrics, err := p.generator.Generate(ctx, generate.PromptInput{
				Query:         query,
				NeedRetrieval: false,
				Today:         p.today,
				History:       history,
			})
			if err != nil {
				return nil, err
			}
			response = text
			timing.TTFT = firstTokenBase + metrics.TTFTModel
			timing.TTFTModel = metrics.TTFTModel
			timing.Subsequent = metrics.Subsequent
			timing.Generation = metrics.Generation
		}
		timing.Total = time.Since(totalStart).Seconds()
		return &QueryResult{
			Response: response,
			References: References{
				Comments:  []CommentRef{},
				Summaries: []SummaryRef{},
				HydeLog:   map[int][]string{},
			},
			QueryProcessing: QueryProcessing{IntentRecognition: false},
			Timing:          timing,
		}, nil
	}

	subQueries := expansion
	if subQueries == nil {
		subQueries = []intent.SubQuery{{Query: query, Weight: 1.0}}
	}

	ranked, summaries, hydeLog, err := p.retrieveAndRank(ctx, query, subQueries, constraints, opts, &timing)
	if err != nil {
		return nil, err
	}

	response := ""
	if opts.EnableGeneration {
		firstTokenBase := time.Since(totalStart).Seconds()
		text, metrics, err := p.generator.Generate(ctx, generate.PromptInput{
			Query:         query,
			SubQueries:    expansion,
			Ranked:        ranked,
			Summaries:     summaries,
			NeedRetrieval: true,
			Today:         p.today,
			History:       history,
		})
		if err != nil {
			return nil, err
		}
		response = text
		timing.TTFT = firstTokenBase + metrics.TTFTModel
		timing.TTFTModel = metrics.TTFTModel
		timing.Subsequent = metrics.Subsequent
		timing.Generation = metrics.Generation
	}
	timing.Total = time.Since(totalStart).Seconds()

	return &QueryResult{
		Response: response,
		References: References{
			Comments:  formatComments(ranked, opts.EnableRanking),
			Summaries: formatSummaries(summaries),
			HydeLog:   hydeLog,
		},
		QueryProcessing: QueryProcessing{
			IntentRecognition: true,
			IntentDetection:   &constraints,
			IntentExpansion:   expansion,
		},
		Timing: timing,
	}, nil
}

// QueryStream runs the pipeline, emitting SSE events through emit in
// the order intent, references, chunk*, done (chunk* then done for the
// direct branch). An emit error aborts the stream.
func (p *Pipeline) QueryStream(ctx context.Context, query string, opts Options, history *Turn, emit func(Event) error) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	totalStart := time.Now()
	var timing Timing

	recognitionStart := time.Now()
	needRetrieval, err := p.recognizer.Recognize(ctx, query, history)
	timing.IntentRecognition = time.Since(recognitionStart).Seconds()
	if err != nil {
		return err
	}

	if err := emit(Event{Type: EventIntent, Data: map[string]bool{"need_retrieval": needRetrieval}}); err != nil {
		return err
	}

	queryProcessingStart := time.Now()
	var (
		constraints intent.Constraints
		expansion   []intent.SubQuery
	)
	if needRetrieval {
		constraints, expansion = p.understand(ctx, query, opts.EnableExpansion, &timing)
	}
	timing.QueryProcessingTotal = timing.IntentRecognition + time.Since(queryProcessingStart).Seconds()

	if !needRetrieval {
		_, _, err := p.generator.GenerateStream(ctx, generate.PromptInput{
			Query:         query,
			NeedRetrieval: false,
			Today:         p.today,
			History:       history,
		}, func(chunk string) error {
			return emit(Event{Type: EventChunk, Content: chunk})
		})
		if err != nil {
			return err
		}
		timing.Total = time.Since(totalStart).Seconds()
		return emit(Event{Type: EventDone, Data: map[string]any{
			"references": References{Comments: []CommentRef{}, Summaries: []SummaryRef{}},
			"timing":     timing,
		}})
	}

	subQueries := expansion
	if subQueries == nil {
		subQueries = []intent.SubQuery{{Query: query, Weight: 1.0}}
	}

	ranked, summaries, _, err := p.retrieveAndRank(ctx, query, subQueries, constraints, opts, &timing)
	if err != nil {
		return err
	}

	err = emit(Event{Type: EventReferences, Data: References{
		Comments:  formatComments(ranked, opts.EnableRanking),
		Summaries: formatSummaries(summaries),
	}})
	if err != nil {
		return err
	}

	_, _, err = p.generator.GenerateStream(ctx, generate.PromptInput{
		Query:         query,
		SubQueries:    expansion,
		Ranked:        ranked,
		Summaries:     summaries,
		NeedRetrieval: true,
		Today:         p.today,
		History:       history,
	}, func(chunk string) error {
		return emit(Event{Type: EventChunk, Content: chunk})
	})
	if err != nil {
		return err
	}

	timing.Total = time.Since(totalStart).Seconds()
	return emit(Event{Type: EventDone, Data: map[string]any{"timing": timing}})
}

// formatComments renders ranked candidates in the frontend's comment
// shape. With ranking off, the fused score and rank stand in for the
// final ones.
func formatComments(ranked []ranking.RankedCandidate, rankingEnabled bool) []CommentRef {
	refs := make([]CommentRef, 0, len(ranked))
	for i, c := range ranked {
		score := c.FinalScore
		rank := c.FinalRank
		if !rankingEnabled {
			score = c.RRFScore
			rank = c.RRFRank
		}
		if rank == 0 {
			rank = i + 1
		}
		refs = append(refs, CommentRef{
			ID:             c.CommentID,
			Comment:        c.Text,
			Score:          c.Review.Score,
			Star:           c.Review.Star,
			UsefulCount:    c.Review.UsefulCount,
			PublishDate:    c.Review.PublishDate.Format("2006-01-02"),
			RoomType:       c.Review.RoomType,
			FuzzyRoomType:  c.Review.FuzzyRoomType,
			TravelType:     c.Review.TravelType,
			ReviewCount:    c.Review.ReviewCount,
			QualityScore:   c.Review.QualityScore,
			RelevanceScore: score,
			Rank:           rank,
		})
	}
	return refs
}

func formatSummaries(summaries []retrieval.Summary) []SummaryRef {
	refs := make([]SummaryRef, 0, len(summaries))
	for _, s := range summaries {
		refs = append(refs, SummaryRef{Category: s.Category, Content: s.SummaryText})
	}
	return refs
}
