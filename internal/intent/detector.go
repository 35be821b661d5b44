package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bytedance/sonic"

	"github.com/gardenhotel/reviewrag/internal/llm"
	"github.com/gardenhotel/reviewrag/internal/review"
)

const detectorPromptTemplate = `
你是一个酒店智能客服助手，需要分析用户查询并提取关键信息。

【任务】
从用户查询中提取以下信息：
1. 房型约束：用户是否提到特定房型
2. 时效性需求：用户是否关注最新信息

【精确房型列表】
%s

【模糊房型列表】
%s

【房型检测规则】
- 优先检测精确房型，如检测到则填入 room_type，若模棱两可或只能检测到模糊房型则视为未检测到，填入 null。填入的内容只能是【精确房型列表】中的房型名称或 null
- 如未检测到精确房型，尝试检测模糊房型，如检测到则填入 fuzzy_room_type，若模棱两可则视为未检测到，填入 null。填入的内容只能是【模糊房型列表】中的房型名称或 null
- 如都未检测到，两者均为 null

【时效性判断标准】
- clear: 用户明确提到"最近"、"今年"、"最新"、"现在"等词汇
- implied: 用户隐含关注当前现状，但未明确表达，表现弱时效性
- null: 用户未表现出时效性关注

【用户查询】
%s

【输出格式】
严格以 JSON 格式输出：
{
    "room_type": "花园大床房" 或 null,
    "fuzzy_room_type": "大床房" 或 null,
    "time_sensitivity": "clear" 或 "implied" 或 null
}
`

// Detector extracts room-type and time-sensitivity constraints with a
// JSON-output model at low temperature.
type Detector struct {
	client llm.ChatClient
	logger *slog.Logger
}

// NewDetector creates a constraint detector.
func NewDetector(client llm.ChatClient, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{client: client, logger: logger}
}

type detectorWire struct {
	RoomType        *string `json:"room_type"`
	FuzzyRoomType   *string `json:"fuzzy_room_type"`
	TimeSensitivity *string `json:"time_sensitivity"`
}

// Detect extracts constraints from the query. Any value outside the
// closed sets is coerced to empty; total failure falls back to the
// all-empty Constraints and never errors.
func (d *Detector) Detect(ctx context.Context, query string) Constraints {
	exact, _ := sonic.Marshal(review.ExactRoomTypes)
	fuzzy, _ := sonic.Marshal(review.FuzzyRoomTypes)
	prompt := fmt.Sprintf(detectorPromptTemplate, string(exact), string(fuzzy), query)

	var out Constraints
	err := withRetry(ctx, func() error {
		resp, callErr := d.client.Generate(ctx, prompt, 0.1)
		if callErr != nil {
			return callErr
		}
		var wire detectorWire
		if parseErr := sonic.Unmarshal([]byte(stripCodeFences(resp)), &wire); parseErr != nil {
			return parseErr
		}
		out = coerceConstraints(wire)
		return nil
	})
	if err != nil {
		d.logger.Warn("intent detection failed, using empty constraints",
			slog.String("error", err.Error()))
		return Constraints{}
	}
	return out
}

// coerceConstraints maps wire values onto the closed sets, dropping
// anything the model invented.
func coerceConstraints(w detectorWire) Constraints {
	var c Constraints
	if w.RoomType != nil && review.IsExactRoomType(*w.RoomType) {
		c.RoomType = *w.RoomType
	}
	if w.FuzzyRoomType != nil && review.IsFuzzyRoomType(*w.FuzzyRoomType) {
		c.FuzzyRoomType = *w.FuzzyRoomType
	}
	if w.TimeSensitivity != nil {
		switch *w.TimeSensitivity {
		case TimeSensitivityClear, TimeSensitivityImplied:
			c.TimeSensitivity = *w.TimeSensitivity
		}
	}
	return c
}
