package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gardenhotel/reviewrag/internal/bm25"
	"github.com/gardenhotel/reviewrag/internal/config"
	"github.com/gardenhotel/reviewrag/internal/llm"
	"github.com/gardenhotel/reviewrag/internal/review"
	"github.com/gardenhotel/reviewrag/internal/vector"
)

// embedBatchSize is the DashScope per-request input limit for the
// text-embedding models.
const embedBatchSize = 10

func newIndexCmd() *cobra.Command {
	var withVectors bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the offline retrieval indexes from the review corpus",
		Long: `index builds the BM25 inverted index blob from the review corpus and,
with --vectors, embeds every comment and builds the local HNSW comment
store. Both artifacts are written to the configured data directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, cleanup, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			table, err := loadReviews(ctx, cfg, logger)
			if err != nil {
				return err
			}

			tok, err := bm25.NewTokenizer(cfg.Data.StopwordsPath)
			if err != nil {
				return err
			}
			index := bm25.New(tok)

			documents := make(map[string]string, table.Len())
			table.Each(func(r *review.Review) {
				documents[r.CommentID] = r.Text
			})
			index.Build(documents)

			if err := index.Save(cfg.Data.IndexPath); err != nil {
				return err
			}
			stats := index.Stats()
			logger.Info("inverted index built",
				slog.Int("docs", stats.Docs),
				slog.Int("terms", stats.Terms),
				slog.String("path", cfg.Data.IndexPath))
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d reviews (%d terms) -> %s\n",
				stats.Docs, stats.Terms, cfg.Data.IndexPath)

			if !withVectors {
				return nil
			}
			return buildCommentStore(cmd, cfg, table, logger)
		},
	}

	cmd.Flags().BoolVar(&withVectors, "vectors", false, "Also embed comments and build the local HNSW store")
	return cmd
}

// buildCommentStore embeds every comment in batches and writes the
// local HNSW comment store.
func buildCommentStore(cmd *cobra.Command, cfg *config.Config, table *review.Table, logger *slog.Logger) error {
	ctx := cmd.Context()

	embedder := llm.NewOpenAIEmbedder(llm.EmbedderConfig{
		APIKey:     cfg.DashScope.APIKey,
		BaseURL:    cfg.DashScope.BaseURL,
		Model:      cfg.Models.Embedding,
		Dimensions: cfg.Models.EmbeddingDimensions,
	})
	store := vector.NewLocalStore(vector.LocalStoreConfig{
		Dimensions: cfg.Models.EmbeddingDimensions,
	})

	var (
		ids    []string
		texts  []string
		fields []map[string]string
	)
	table.Each(func(r *review.Review) {
		ids = append(ids, r.CommentID)
		texts = append(texts, r.Text)
		fields = append(fields, map[string]string{
			"comment_id":      r.CommentID,
			"room_type":       r.RoomType,
			"fuzzy_room_type": r.FuzzyRoomType,
			"quality_score":   strconv.FormatFloat(r.QualityScore, 'f', -1, 64),
		})
	})

	for start := 0; start < len(ids); start += embedBatchSize {
		end := min(start+embedBatchSize, len(ids))
		vectors, err := embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return err
		}
		if err := store.Add(ids[start:end], vectors, fields[start:end]); err != nil {
			return err
		}
		logger.Debug("embedded batch", slog.Int("from", start), slog.Int("to", end))
	}

	if err := store.Save(cfg.Data.CommentsPath); err != nil {
		return err
	}
	logger.Info("comment vector store built",
		slog.Int("vectors", store.Count()),
		slog.String("path", cfg.Data.CommentsPath))
	fmt.Fprintf(cmd.OutOrStdout(), "embedded %d comments -> %s\n",
		store.Count(), cfg.Data.CommentsPath)
	return nil
}
