// Package server exposes the pipeline over HTTP: a health probe and a
// chat endpoint that answers either as JSON (references only) or as a
// server-sent event stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
	"github.com/gardenhotel/reviewrag/internal/rag"
)

// QueryService is what the HTTP layer needs from the pipeline. It is
// an interface so handler tests can run against a fake.
type QueryService interface {
	Query(ctx context.Context, query string, opts rag.Options, history *rag.Turn) (*rag.QueryResult, error)
	QueryStream(ctx context.Context, query string, opts rag.Options, history *rag.Turn, emit func(rag.Event) error) error
}

// Config configures the HTTP server.
type Config struct {
	Addr    string
	Version string
}

// Server is the HTTP front end.
type Server struct {
	engine  *gin.Engine
	service QueryService
	config  Config
	logger  *slog.Logger
}

// NewServer builds the router. service may be nil, in which case chat
// requests answer 503 until a pipeline is attached.
func NewServer(cfg Config, service QueryService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware())

	s := &Server{
		engine:  engine,
		service: service,
		config:  cfg,
		logger:  logger,
	}

	v1 := engine.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.POST("/chat", s.handleChat)
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.Addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.config.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware allows any origin; the service sits behind a trusted
// frontend proxy.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   s.config.Version,
		"rag_ready": s.service != nil,
	})
}

type chatRequest struct {
	Query   string            `json:"query"`
	Options *rag.OptionsPatch `json:"options"`
	History *chatHistory      `json:"history"`
}

type chatHistory struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "query 不能为空"})
		return
	}
	if s.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "RAG 系统未就绪"})
		return
	}

	var history *rag.Turn
	if req.History != nil && req.History.User != "" {
		history = &rag.Turn{User: req.History.User, Assistant: req.History.Assistant}
	}

	streaming := true
	if req.Options != nil && req.Options.EnableGeneration != nil && !*req.Options.EnableGeneration {
		streaming = false
	}

	if !streaming {
		opts := rag.DefaultOptions()
		req.Options.Apply(&opts)
		opts.EnableGeneration = false

		result, err := s.service.Query(c.Request.Context(), query, opts, history)
		if err != nil {
			s.logger.Error("chat query failed",
				slog.String("code", ragerrors.GetCode(err)),
				slog.String("error", err.Error()))
			c.JSON(statusFor(err), gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"references": result.References,
			"timing":     result.Timing,
		})
		return
	}

	opts := rag.DefaultStreamOptions()
	req.Options.Apply(&opts)
	opts.EnableGeneration = true

	s.streamChat(c, query, opts, history)
}

// statusFor maps pipeline errors onto HTTP statuses: validation to
// 400, everything else to 500.
func statusFor(err error) int {
	if ragerrors.GetCategory(err) == ragerrors.CategoryValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
