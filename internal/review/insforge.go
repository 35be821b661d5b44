package review

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

// insforgeBatchSize is the page size for Range-header pagination.
const insforgeBatchSize = 1000

// InsforgeClient fetches the review corpus from an Insforge database
// over its PostgREST-style records API.
type InsforgeClient struct {
	BaseURL string
	AnonKey string

	httpClient *http.Client
	logger     *slog.Logger
}

// NewInsforgeClient creates a client for the given base URL and key.
func NewInsforgeClient(baseURL, anonKey string, logger *slog.Logger) *InsforgeClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsforgeClient{
		BaseURL:    baseURL,
		AnonKey:    anonKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// insforgeRecord is the wire shape of one comment row.
type insforgeRecord struct {
	ID            string  `json:"_id"`
	Comment       string  `json:"comment"`
	Score         float64 `json:"score"`
	PublishDate   string  `json:"publish_date"`
	QualityScore  float64 `json:"quality_score"`
	ReviewCount   int     `json:"review_count"`
	UsefulCount   int     `json:"useful_count"`
	RoomType      string  `json:"room_type"`
	FuzzyRoomType string  `json:"fuzzy_room_type"`
	Star          int     `json:"star"`
	TravelType    string  `json:"travel_type"`
}

// FetchAll pages through the comments table and returns every review.
func (c *InsforgeClient) FetchAll(ctx context.Context) ([]Review, error) {
	if c.BaseURL == "" || c.AnonKey == "" {
		return nil, ragerrors.ConfigError("insforge base URL and anon key are required", nil)
	}

	var reviews []Review
	offset := 0
	for {
		batch, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for _, rec := range batch {
			r, err := rec.toReview()
			if err != nil {
				c.logger.Warn("skipping malformed review record",
					slog.String("comment_id", rec.ID), slog.String("error", err.Error()))
				continue
			}
			reviews = append(reviews, r)
		}
		if len(batch) < insforgeBatchSize {
			break
		}
		offset += insforgeBatchSize
	}

	c.logger.Info("review corpus loaded from insforge", slog.Int("count", len(reviews)))
	return reviews, nil
}

func (c *InsforgeClient) fetchPage(ctx context.Context, offset int) ([]insforgeRecord, error) {
	url := c.BaseURL + "/api/database/records/comments?select=*"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeReviewLoad, err)
	}
	req.Header.Set("apikey", c.AnonKey)
	req.Header.Set("Authorization", "Bearer "+c.AnonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", fmt.Sprintf("%d-%d", offset, offset+insforgeBatchSize-1))
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeReviewLoad, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(resp.Body)
		return nil, ragerrors.New(ragerrors.ErrCodeReviewLoad,
			fmt.Sprintf("insforge API status %d: %s", resp.StatusCode, string(body)), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeReviewLoad, err)
	}
	var records []insforgeRecord
	if err := sonic.Unmarshal(body, &records); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeReviewLoad, err)
	}
	return records, nil
}

func (rec insforgeRecord) toReview() (Review, error) {
	publish, err := ParseDate(rec.PublishDate)
	if err != nil {
		return Review{}, err
	}
	return Review{
		CommentID:     rec.ID,
		Text:          rec.Comment,
		Score:         rec.Score,
		PublishDate:   publish,
		QualityScore:  rec.QualityScore,
		ReviewCount:   rec.ReviewCount,
		UsefulCount:   rec.UsefulCount,
		RoomType:      rec.RoomType,
		FuzzyRoomType: rec.FuzzyRoomType,
		Star:          rec.Star,
		TravelType:    rec.TravelType,
	}, nil
}
