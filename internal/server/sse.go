package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/gardenhotel/reviewrag/internal/rag"
)

// sseQueueSize bounds the hand-off between the pipeline goroutine and
// the HTTP writer. A stalled client blocks the producer here instead
// of buffering the whole answer.
const sseQueueSize = 32

// streamChat runs the streaming pipeline in its own goroutine and
// relays its events to the client as SSE frames. Closing the events
// channel is the stream-end sentinel; a pipeline failure becomes a
// terminal error event.
func (s *Server) streamChat(c *gin.Context, query string, opts rag.Options, history *rag.Turn) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	events := make(chan rag.Event, sseQueueSize)

	go func() {
		defer close(events)
		err := s.service.QueryStream(ctx, query, opts, history, func(ev rag.Event) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Error("chat stream failed", slog.String("error", err.Error()))
			select {
			case events <- rag.Event{Type: rag.EventError, Message: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	flusher, canFlush := c.Writer.(http.Flusher)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := sonic.Marshal(ev)
			if err != nil {
				s.logger.Error("sse event marshal failed", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-ctx.Done():
			return
		}
	}
}
