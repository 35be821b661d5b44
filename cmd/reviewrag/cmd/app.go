package cmd

import (
	"context"
	"log/slog"

	"github.com/gardenhotel/reviewrag/internal/bm25"
	"github.com/gardenhotel/reviewrag/internal/config"
	"github.com/gardenhotel/reviewrag/internal/generate"
	"github.com/gardenhotel/reviewrag/internal/intent"
	"github.com/gardenhotel/reviewrag/internal/llm"
	"github.com/gardenhotel/reviewrag/internal/logging"
	"github.com/gardenhotel/reviewrag/internal/rag"
	"github.com/gardenhotel/reviewrag/internal/retrieval"
	"github.com/gardenhotel/reviewrag/internal/review"
	"github.com/gardenhotel/reviewrag/internal/vector"
)

// app holds everything a command needs after bootstrap.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	pipeline *rag.Pipeline
	cleanup  func()
}

// setupLogging configures the process logger from config and flags.
func setupLogging(cfg *config.Config) (*slog.Logger, func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.FilePath = cfg.Logging.FilePath
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// loadReviews loads the review table, preferring the REST source when
// configured and falling back to the sqlite file.
func loadReviews(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*review.Table, error) {
	var (
		reviews []review.Review
		err     error
	)
	if cfg.Insforge.BaseURL != "" {
		client := review.NewInsforgeClient(cfg.Insforge.BaseURL, cfg.Insforge.AnonKey, logger)
		reviews, err = client.FetchAll(ctx)
	} else {
		reviews, err = review.LoadSQLite(ctx, cfg.Data.ReviewsSQLite)
	}
	if err != nil {
		return nil, err
	}
	table := review.NewTable(reviews)
	logger.Info("review table loaded", slog.Int("reviews", table.Len()))
	return table, nil
}

// newApp bootstraps the full pipeline from configuration.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, cleanup, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}

	table, err := loadReviews(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	tok, err := bm25.NewTokenizer(cfg.Data.StopwordsPath)
	if err != nil {
		cleanup()
		return nil, err
	}
	index, err := bm25.Load(cfg.Data.IndexPath, tok)
	if err != nil {
		cleanup()
		return nil, err
	}
	logger.Info("inverted index loaded",
		slog.Int("terms", index.Stats().Terms),
		slog.Int("docs", index.Stats().Docs))

	var comments, reverse vector.Store
	if cfg.DashVector.Local {
		commentsStore, err := vector.LoadLocalStore(cfg.Data.CommentsPath)
		if err != nil {
			cleanup()
			return nil, err
		}
		reverseStore, err := vector.LoadLocalStore(cfg.Data.ReversePath)
		if err != nil {
			cleanup()
			return nil, err
		}
		comments, reverse = commentsStore, reverseStore
	} else {
		comments = vector.NewDashVectorStore(vector.DashVectorConfig{
			Endpoint:   cfg.DashVector.Endpoint,
			APIKey:     cfg.DashVector.APIKey,
			Collection: cfg.DashVector.CommentsCollection,
		})
		reverse = vector.NewDashVectorStore(vector.DashVectorConfig{
			Endpoint:   cfg.DashVector.Endpoint,
			APIKey:     cfg.DashVector.APIKey,
			Collection: cfg.DashVector.ReverseCollection,
		})
	}

	summaries, err := vector.LoadSummaryIndex(cfg.Data.SummaryPath)
	if err != nil {
		cleanup()
		return nil, err
	}

	recognizerChat := llm.NewOpenAIChat(llm.ChatConfig{
		APIKey:  cfg.DashScope.APIKey,
		BaseURL: cfg.DashScope.BaseURL,
		Model:   cfg.Models.Recognition,
	})
	detectionChat := llm.NewOpenAIChat(llm.ChatConfig{
		APIKey:     cfg.DashScope.APIKey,
		BaseURL:    cfg.DashScope.BaseURL,
		Model:      cfg.Models.Detection,
		JSONOutput: true,
	})
	expansionChat := llm.NewOpenAIChat(llm.ChatConfig{
		APIKey:     cfg.DashScope.APIKey,
		BaseURL:    cfg.DashScope.BaseURL,
		Model:      cfg.Models.ExpansionHyde,
		JSONOutput: true,
	})
	generationChat := llm.NewOpenAIChat(llm.ChatConfig{
		APIKey:  cfg.DashScope.APIKey,
		BaseURL: cfg.DashScope.BaseURL,
		Model:   cfg.Models.Generation,
	})
	embedder := llm.NewOpenAIEmbedder(llm.EmbedderConfig{
		APIKey:     cfg.DashScope.APIKey,
		BaseURL:    cfg.DashScope.BaseURL,
		Model:      cfg.Models.Embedding,
		Dimensions: cfg.Models.EmbeddingDimensions,
	})
	reranker := llm.NewDashScopeReranker(llm.RerankConfig{
		APIKey: cfg.DashScope.APIKey,
		URL:    cfg.DashScope.RerankURL,
		Model:  cfg.Models.Rerank,
	})

	recognizer, err := intent.NewRecognizer(recognizerChat, intent.DefaultRecognizerCacheSize, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	detector := intent.NewDetector(detectionChat, logger)
	expander := intent.NewExpander(expansionChat, logger)
	hyde := intent.NewHyDEGenerator(expansionChat, logger)

	retriever := retrieval.NewRetriever(index, comments, reverse, summaries, embedder, hyde, table, logger)
	generator := generate.NewGenerator(generationChat, logger)

	today, err := cfg.ReferenceDate()
	if err != nil {
		cleanup()
		return nil, err
	}

	pipeline := rag.NewPipeline(recognizer, detector, expander, retriever, reranker, generator, today, logger)
	return &app{cfg: cfg, logger: logger, pipeline: pipeline, cleanup: cleanup}, nil
}
