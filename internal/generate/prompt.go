// Package generate assembles the answer prompt and streams the final
// completion, measuring first-token and total latency.
package generate

import (
	"fmt"
	"strings"
	"time"

	"github.com/gardenhotel/reviewrag/internal/intent"
	"github.com/gardenhotel/reviewrag/internal/ranking"
	"github.com/gardenhotel/reviewrag/internal/retrieval"
)

// PromptInput is everything the prompt builder needs for one turn.
type PromptInput struct {
	Query         string
	SubQueries    []intent.SubQuery
	Ranked        []ranking.RankedCandidate
	Summaries     []retrieval.Summary
	NeedRetrieval bool
	Today         time.Time
	History       *intent.Turn
}

// BuildPrompt renders the generation prompt. The direct branch gets a
// short conversational prompt; the retrieval branch gets the review
// evidence with citation rules.
func BuildPrompt(in PromptInput) string {
	historyContext := ""
	if in.History != nil && in.History.User != "" && in.History.Assistant != "" {
		historyContext = fmt.Sprintf(`
【上一轮对话】
用户：%s
助手：%s
`, in.History.User, in.History.Assistant)
	}

	if !in.NeedRetrieval {
		return fmt.Sprintf(`
你是广州花园酒店的智能客服助手。

%s

用户问题：%s

请直接回答用户的问题。注意：
- 如果是问候或闲聊，友好回应
- 如果是通用问题，给出简洁准确的回答
- 如果用户的问题是对上一轮对话的追问，请结合上下文理解用户意图
- 语气要亲切专业
- 使用Markdown格式输出，不得出现 "`+"```markdown"+`", "`+"```"+`" 标记
`, historyContext, in.Query)
	}

	date := fmt.Sprintf("%d年%d月%d日", in.Today.Year(), int(in.Today.Month()), in.Today.Day())

	var queriesContext strings.Builder
	if len(in.SubQueries) > 0 {
		queriesContext.WriteString("【问题解析】\n系统识别到用户可能关注以下方面：\n")
		lines := make([]string, 0, len(in.SubQueries))
		for _, sq := range in.SubQueries {
			lines = append(lines, fmt.Sprintf("- %s（意图权重为%g）", sq.Query, sq.Weight))
		}
		queriesContext.WriteString(strings.Join(lines, "\n"))
		queriesContext.WriteString("\n注意：权重信息是用来帮助你区分意图主次的，**不得**向用户输出权重相关信息。")
	}

	var commentsContext strings.Builder
	if len(in.Ranked) > 0 {
		commentsContext.WriteString("【相关用户评论】\n")
		for i, c := range in.Ranked {
			commentsContext.WriteString(fmt.Sprintf(`
【评论%d】
评分: %g（满分5分）
发布日期: %s
评论文本: %s
点赞数: %d
回复数: %d
房型: %s
`, i+1, c.Review.Score, c.Review.PublishDate.Format("2006-01-02"), c.Text,
				c.Review.UsefulCount, c.Review.ReviewCount, c.Review.RoomType))
		}
	} else {
		commentsContext.WriteString("【未检索到相关用户评论】\n")
	}

	var summariesContext strings.Builder
	if len(in.Summaries) > 0 {
		summariesContext.WriteString("【相关评论摘要】\n")
		for _, s := range in.Summaries {
			summariesContext.WriteString(fmt.Sprintf(`
【%s类别摘要】
关键词: %s
摘要: %s
`, s.Category, strings.Join(s.Keywords, "、"), s.SummaryText))
		}
		summariesContext.WriteString(`
注意：评论摘要是用来给到你更丰富的概览信息的，但用户只能看到【相关用户评论】的引用而看不到摘要的引用，因此在回复中你可以给出摘要中的模糊信息，但**不得过于精确因为用户无法溯源**，也**不得告诉用户你引用了摘要**，**更不得将其当作评论引用输出“评论x”**。若摘要中的信息与用户问题无关，直接忽略即可，**不需要**做出任何额外说明。
`)
	}

	return fmt.Sprintf(`
你是广州花园酒店的智能客服助手，需要基于用户评论为用户提供准确、高质量、有帮助、简洁的回答。

今天是：%s

%s

用户问题：%s

%s

%s

%s

【回答要求】
1. 综合以上评论信息，给出客观、全面的回答
2. 回答要有条理，突出重点
3. 如有正面和负面评价，都要提及，保持客观。注意给出的参考评论并不代表所有，切忌以偏概全给出"绝对化"的表述
4. 语气要专业、亲切
5. 回答长度适中，不要过于冗长
6. 不得大段或连续照抄用户评论，严禁全文都在引用用户评论却并没有思考提炼总结。相似内容能合并就合并，不要分开引用（合并后注意不得同时列出超过3条参考评论，使用"等"替代）
7. 一般来说越靠前的评论，其重要性越高，但你也可以自行判断自行选择
8. 不得在回复中罗列用户评论的具体日期，但当用户问题时效性敏感时，可以大致提一下参考评论的时间范围；当用户未表现出明显时效性需求时不要强行给出具体时间
9. 引用【相关用户评论】中某一条评论独特内容时应指出其序号评论几（**仅指出非常确定的引用，模棱两可的引用不要指出，务必保证引用序号绝对正确**），供用户参考；但针对参考评论总体（如"多数住客……"等内容）或【xx类别摘要】进行归纳总结时**无需**指出参考了哪些评论
10. 不得同时列出超过3条参考评论，即禁止诸如"（评论1/3/5/7）"的表述。如需同时引用超过3条评论，则应输出"（评论1/3等）"，而不是将其全部列出。优先给出排名靠前的评论引用
11. 如果评论信息不足以回答问题，诚实说明
12. 所有的回复必须仅依赖检索到的用户评论及摘要，不得出现自作主张的幻觉回复，例如帮用户查询酒店今日客房剩余、当前酒店相关活动推荐等一律不允许出现。你并没有接入酒店内部API无法完成这些事情因此禁止在回复中出现此类幻觉信息
13. 使用Markdown格式输出，不得出现 "`+"```markdown"+`", "`+"```"+`" 标记

用户问题：%s

请给出你的回答：
`, date, historyContext, in.Query, queriesContext.String(), commentsContext.String(), summariesContext.String(), in.Query)
}
