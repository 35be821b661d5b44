package vector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

// DashVectorConfig configures a remote collection client.
type DashVectorConfig struct {
	Endpoint   string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// DashVectorStore queries one DashVector collection over HTTP.
type DashVectorStore struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	collection string
}

var _ Store = (*DashVectorStore)(nil)

// NewDashVectorStore creates a client for the named collection.
func NewDashVectorStore(cfg DashVectorConfig) *DashVectorStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DashVectorStore{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
	}
}

type dashVectorQuery struct {
	Vector        []float32 `json:"vector"`
	TopK          int       `json:"topk"`
	Filter        string    `json:"filter,omitempty"`
	IncludeVector bool      `json:"include_vector"`
}

type dashVectorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Output  []struct {
		ID     string            `json:"id"`
		Score  float64           `json:"score"`
		Fields map[string]string `json:"fields"`
	} `json:"output"`
}

// Query runs a nearest-neighbor search with an optional filter.
func (s *DashVectorStore) Query(ctx context.Context, vec []float32, topK int, filter *Filter) ([]Hit, error) {
	body, err := sonic.Marshal(dashVectorQuery{
		Vector: vec,
		TopK:   topK,
		Filter: filter.String(),
	})
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeVectorQuery, err)
	}

	url := fmt.Sprintf("%s/v1/collections/%s/query", s.endpoint, s.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeVectorQuery, err)
	}
	req.Header.Set("dashvector-auth-token", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeVectorQuery, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeVectorQuery, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ragerrors.New(ragerrors.ErrCodeVectorQuery,
			fmt.Sprintf("collection %s status %d: %s", s.collection, resp.StatusCode, string(respBody)), nil)
	}

	var parsed dashVectorResponse
	if err := sonic.Unmarshal(respBody, &parsed); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeVectorQuery, err)
	}
	if parsed.Code != 0 {
		return nil, ragerrors.New(ragerrors.ErrCodeVectorQuery,
			fmt.Sprintf("collection %s code %d: %s", s.collection, parsed.Code, parsed.Message), nil)
	}

	hits := make([]Hit, 0, len(parsed.Output))
	for _, out := range parsed.Output {
		hits = append(hits, Hit{ID: out.ID, Score: out.Score, Fields: out.Fields})
	}
	return hits, nil
}
