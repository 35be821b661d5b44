// Package intent implements the query-understanding stages: intent
// recognition (retrieve or answer directly), constraint detection,
// weighted query expansion, and HyDE hypothesis generation.
//
// All stages are best-effort with one retry and a short backoff; each
// has a defined fallback so the pipeline keeps going. The exception is
// the recognizer, whose result picks the pipeline branch and whose
// failure is therefore fatal to the request.
package intent

import (
	"context"
	"strings"
	"time"
)

// Time-sensitivity levels as the detector emits them. The empty string
// means no time sensitivity detected.
const (
	TimeSensitivityClear   = "clear"
	TimeSensitivityImplied = "implied"
)

// Constraints are the structured needs extracted from a query. Empty
// strings mean "not detected".
type Constraints struct {
	RoomType        string `json:"room_type"`
	FuzzyRoomType   string `json:"fuzzy_room_type"`
	TimeSensitivity string `json:"time_sensitivity"`
}

// SubQuery is one weighted rewrite of the user query.
type SubQuery struct {
	Query  string  `json:"query"`
	Weight float64 `json:"weight"`
}

// Turn is the previous conversation turn, used to condition the
// recognizer and the generator.
type Turn struct {
	User      string
	Assistant string
}

const (
	stageAttempts = 2
	stageBackoff  = 100 * time.Millisecond
)

// withRetry runs fn up to stageAttempts times with stageBackoff between
// attempts, honoring context cancellation.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < stageAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(stageBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// stripCodeFences removes markdown code fences some models wrap JSON
// output in.
func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
