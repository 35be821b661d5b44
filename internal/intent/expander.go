package intent

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/bytedance/sonic"

	"github.com/gardenhotel/reviewrag/internal/llm"
)

const expanderPromptTemplate = `
你是一个酒店智能客服助手，需要深度理解用户查询意图。

【任务】
1. 分析用户查询，检测用户的核心关注点
2. 生成1-3个改写后的查询，每个查询更清晰、更具体地表达一个关注点
3. 为每个改写查询分配权重，表示该关注点的重要性（权重之和为1，且只允许使用0.2的倍数，即0.2,0.4,0.6,0.8,1.0）

【用户查询】
%s

【要求】
- 改写的查询应该比原查询更具体、更明确
- 每个改写查询应该聚焦一个具体方面
- 权重应该反映该方面在原查询中的重要性
- 对于模糊的查询，使用尽可能多的改写来覆盖更大范围的意图；对于明确的查询，不要对其过度展开

【输出格式】
严格以 JSON 格式输出：
{
    "rewritten_queries": [
        {"query": "酒店交通是否便利？", "weight": 0.6},
        {"query": "酒店周边有哪些配套设施？", "weight": 0.2},
        {"query": "酒店的服务效率如何？", "weight": 0.2}
    ]
}

【注意】
- rewritten_queries 数组长度为1-3
- 所有 weight 之和必须等于1，且只允许使用0.2的倍数
`

const weightEpsilon = 1e-9

// Expander rewrites a query into 1-3 weighted sub-queries.
type Expander struct {
	client llm.ChatClient
	logger *slog.Logger
}

// NewExpander creates a query expander.
func NewExpander(client llm.ChatClient, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{client: client, logger: logger}
}

type expanderWire struct {
	RewrittenQueries []SubQuery `json:"rewritten_queries"`
}

// Expand returns the weighted sub-queries, or nil when expansion fails
// or the model's output violates the weight contract. The caller
// substitutes the identity sub-query on nil.
func (e *Expander) Expand(ctx context.Context, query string) []SubQuery {
	prompt := fmt.Sprintf(expanderPromptTemplate, query)

	var out []SubQuery
	err := withRetry(ctx, func() error {
		resp, callErr := e.client.Generate(ctx, prompt, 0.3)
		if callErr != nil {
			return callErr
		}
		var wire expanderWire
		if parseErr := sonic.Unmarshal([]byte(stripCodeFences(resp)), &wire); parseErr != nil {
			return parseErr
		}
		if validateErr := ValidateSubQueries(wire.RewrittenQueries); validateErr != nil {
			return validateErr
		}
		out = wire.RewrittenQueries
		return nil
	})
	if err != nil {
		e.logger.Warn("intent expansion failed, falling back to original query",
			slog.String("error", err.Error()))
		return nil
	}
	return out
}

// ValidateSubQueries checks the expansion contract: 1-3 non-empty
// queries, each weight a positive multiple of 0.2, weights summing
// to 1.
func ValidateSubQueries(queries []SubQuery) error {
	if len(queries) < 1 || len(queries) > 3 {
		return fmt.Errorf("expected 1-3 sub-queries, got %d", len(queries))
	}
	sum := 0.0
	for _, sq := range queries {
		if sq.Query == "" {
			return fmt.Errorf("empty sub-query text")
		}
		if sq.Weight <= 0 {
			return fmt.Errorf("non-positive weight %v", sq.Weight)
		}
		if math.Abs(sq.Weight*5-math.Round(sq.Weight*5)) > weightEpsilon {
			return fmt.Errorf("weight %v is not a multiple of 0.2", sq.Weight)
		}
		sum += sq.Weight
	}
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("weights sum to %v, want 1.0", sum)
	}
	return nil
}
