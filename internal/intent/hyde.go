package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bytedance/sonic"

	"github.com/gardenhotel/reviewrag/internal/llm"
)

const hydePromptTemplate = `
你是一个酒店评论撰写者，需要为以下查询生成假设性的评论回复。

【查询】
%s

【任务】
针对上述查询，生成3条假设性的酒店评论：
- 2条正面评论：积极评价酒店相关方面
- 1条负面评论：指出可能存在的不足

【要求】
- 每条评论50-100字
- 评论要具体、真实，包含细节
- 评论风格要像真实用户写的
- 尽量增大3条评论之间的差异性

【输出格式】
严格以 JSON 格式输出：
{
    "hypothetical_responses": [
        "正面评论1",
        "正面评论2",
        "负面评论"
    ]
}
`

// maxHypotheses bounds how many hypothetical reviews one sub-query may
// contribute to the HyDE route.
const maxHypotheses = 3

// HyDEGenerator writes hypothetical review passages for a sub-query so
// the HyDE route can search with review-shaped text instead of
// question-shaped text.
type HyDEGenerator struct {
	client llm.ChatClient
	logger *slog.Logger
}

// NewHyDEGenerator creates a hypothesis generator.
func NewHyDEGenerator(client llm.ChatClient, logger *slog.Logger) *HyDEGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &HyDEGenerator{client: client, logger: logger}
}

type hydeWire struct {
	HypotheticalResponses []string `json:"hypothetical_responses"`
}

// Generate returns up to three hypothetical reviews for the sub-query.
// On failure it returns the query itself, degrading HyDE to plain
// vector search.
func (g *HyDEGenerator) Generate(ctx context.Context, query string) []string {
	prompt := fmt.Sprintf(hydePromptTemplate, query)

	var out []string
	err := withRetry(ctx, func() error {
		resp, callErr := g.client.Generate(ctx, prompt, 0.7)
		if callErr != nil {
			return callErr
		}
		var wire hydeWire
		if parseErr := sonic.Unmarshal([]byte(stripCodeFences(resp)), &wire); parseErr != nil {
			return parseErr
		}
		if len(wire.HypotheticalResponses) == 0 {
			return fmt.Errorf("no hypothetical responses returned")
		}
		out = wire.HypotheticalResponses
		return nil
	})
	if err != nil {
		g.logger.Warn("hyde generation failed, falling back to raw query",
			slog.String("error", err.Error()))
		return []string{query}
	}

	if len(out) > maxHypotheses {
		out = out[:maxHypotheses]
	}
	return out
}
