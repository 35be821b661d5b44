package rag

import (
	"github.com/gardenhotel/reviewrag/internal/intent"
	"github.com/gardenhotel/reviewrag/internal/ranking"
	"github.com/gardenhotel/reviewrag/internal/retrieval"
)

// SSE event types, emitted in the order intent, references, chunk*,
// done. An error event may replace any remaining events.
const (
	EventIntent     = "intent"
	EventReferences = "references"
	EventChunk      = "chunk"
	EventDone       = "done"
	EventError      = "error"
)

// Event is one SSE payload. Data carries intent/references/done
// bodies, Content carries chunk text, Message carries error text.
type Event struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// CommentRef is a ranked comment as the frontend consumes it.
// RelevanceScore and Rank fall back from final to fused values when
// ranking is disabled.
type CommentRef struct {
	ID             string  `json:"_id"`
	Comment        string  `json:"comment"`
	Score          float64 `json:"score"`
	Star           int     `json:"star"`
	UsefulCount    int     `json:"useful_count"`
	PublishDate    string  `json:"publish_date"`
	RoomType       string  `json:"room_type"`
	FuzzyRoomType  string  `json:"fuzzy_room_type"`
	TravelType     string  `json:"travel_type"`
	ReviewCount    int     `json:"review_count"`
	QualityScore   float64 `json:"quality_score"`
	RelevanceScore float64 `json:"relevance_score"`
	Rank           int     `json:"rank"`
}

// SummaryRef is a category summary as the frontend consumes it.
type SummaryRef struct {
	Category string `json:"category"`
	Content  string `json:"content"`
}

// References is the evidence payload of one answer.
type References struct {
	Comments  []CommentRef     `json:"comments"`
	Summaries []SummaryRef     `json:"summaries"`
	HydeLog   map[int][]string `json:"hyde_responses,omitempty"`
}

// QueryProcessing reports what the understanding stages concluded.
type QueryProcessing struct {
	IntentRecognition bool                `json:"intent_recognition"`
	IntentDetection   *intent.Constraints `json:"intent_detection"`
	IntentExpansion   []intent.SubQuery   `json:"intent_expansion"`
}

// RouteTimings is the per-route latency block inside the retrieval
// timing payload.
type RouteTimings struct {
	BM25      float64              `json:"bm25"`
	Vector    float64              `json:"vector"`
	Reverse   float64              `json:"reverse"`
	Hyde      retrieval.HydeTiming `json:"hyde"`
	Summary   float64              `json:"summary"`
	RRFFusion float64              `json:"rrf_fusion"`
}

// RetrievalTiming is the retrieval stage's timing payload.
type RetrievalTiming struct {
	Routes RouteTimings `json:"routes"`
	Total  float64      `json:"total"`
}

func newRetrievalTiming(t retrieval.Timing) *RetrievalTiming {
	return &RetrievalTiming{
		Routes: RouteTimings{
			BM25:      t.BM25,
			Vector:    t.Vector,
			Reverse:   t.Reverse,
			Hyde:      t.Hyde,
			Summary:   t.Summary,
			RRFFusion: t.RRFFusion,
		},
		Total: t.Total,
	}
}

// Timing is the full per-request latency breakdown in seconds. TTFT
// measures from request start; TTFTModel from prompt submission.
type Timing struct {
	IntentRecognition    float64          `json:"intent_recognition"`
	IntentDetection      float64          `json:"intent_detection"`
	IntentExpansion      float64          `json:"intent_expansion"`
	QueryProcessingTotal float64          `json:"query_processing_total"`
	Retrieval            *RetrievalTiming `json:"retrieval,omitempty"`
	Ranking              *ranking.Timing  `json:"ranking,omitempty"`
	TTFT                 float64          `json:"ttft"`
	TTFTModel            float64          `json:"ttft_model"`
	Subsequent           float64          `json:"subsequent"`
	Generation           float64          `json:"generation"`
	Total                float64          `json:"total"`
}

// QueryResult is the non-streaming answer envelope.
type QueryResult struct {
	Response        string          `json:"response"`
	References      References      `json:"references"`
	QueryProcessing QueryProcessing `json:"query_processing"`
	Timing          Timing          `json:"timing"`
}
