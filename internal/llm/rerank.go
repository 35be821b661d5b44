package llm

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

// DefaultRerankURL is the DashScope text-rerank endpoint.
const DefaultRerankURL = "https://dashscope.aliyuncs.com/api/v1/services/rerank/text-rerank/text-rerank"

// Reranker scores (query, document) pairs with a cross-encoder model.
type Reranker interface {
	// Rerank returns a map from document index to relevance in [0,1].
	// Indices missing from the map carry zero relevance.
	Rerank(ctx context.Context, query string, documents []string, topN int) (map[int]float64, error)
}

// RerankConfig configures the DashScope rerank client.
type RerankConfig struct {
	APIKey  string
	URL     string
	Model   string
	Timeout time.Duration
}

// DashScopeReranker calls the DashScope text-rerank service.
type DashScopeReranker struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
}

var _ Reranker = (*DashScopeReranker)(nil)

// NewDashScopeReranker creates a rerank client.
func NewDashScopeReranker(cfg RerankConfig) *DashScopeReranker {
	url := cfg.URL
	if url == "" {
		url = DefaultRerankURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DashScopeReranker{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

type rerankRequest struct {
	Model string `json:"model"`
	Input struct {
		Query     string   `json:"query"`
		Documents []string `json:"documents"`
	} `json:"input"`
	Parameters struct {
		TopN            int  `json:"top_n"`
		ReturnDocuments bool `json:"return_documents"`
	} `json:"parameters"`
}

type rerankResponse struct {
	Output struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Rerank scores documents against the query. topN <= 0 scores all.
func (r *DashScopeReranker) Rerank(ctx context.Context, query string, documents []string, topN int) (map[int]float64, error) {
	if len(documents) == 0 {
		return map[int]float64{}, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	var reqBody rerankRequest
	reqBody.Model = r.model
	reqBody.Input.Query = query
	reqBody.Input.Documents = documents
	reqBody.Parameters.TopN = topN
	reqBody.Parameters.ReturnDocuments = false

	body, err := sonic.Marshal(reqBody)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeRerankFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeRerankFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeRerankFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeRerankFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ragerrors.New(ragerrors.ErrCodeRerankFailed,
			fmt.Sprintf("rerank status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed rerankResponse
	if err := sonic.Unmarshal(respBody, &parsed); err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeRerankFailed, err)
	}

	scores := make(map[int]float64, len(parsed.Output.Results))
	for _, res := range parsed.Output.Results {
		scores[res.Index] = res.RelevanceScore
	}
	return scores, nil
}
