// Package http exposes the session engine over an OpenAI-compatible API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/relay/internal/logging"
	"github.com/fyrsmithlabs/relay/internal/session"
)

// TurnRunner runs one user turn. *session.Engine implements it.
type TurnRunner interface {
	Turn(ctx context.Context, input string) (session.TurnResult, error)
}

// Server provides HTTP endpoints for relay.
type Server struct {
	echo    *echo.Echo
	turns   TurnRunner
	logger  *logging.Logger
	config  *Config
	metrics *HTTPMetrics
	now     func() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Model is reported when the request does not name one.
	Model   string
	Version string
}

// NewServer creates a new HTTP server.
func NewServer(turns TurnRunner, logger *logging.Logger, cfg *Config) (*Server, error) {
	if turns == nil {
		return nil, errors.New("turn runner cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8000,
		}
	}
	if cfg.Model == "" {
		cfg.Model = "relay"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		turns:   turns,
		logger:  logger.Named("http"),
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
		now:     time.Now,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.Middleware())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		ctx := c.Request().Context()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidID(id) {
			ctx = logging.WithRequestID(ctx, id)
			c.SetRequest(c.Request().WithContext(ctx))
		}

		err := next(c)

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/chat/completions", s.handleChatCompletions)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

// handleChatCompletions runs the content of the last message as a turn.
func (s *Server) handleChatCompletions(c echo.Context) error {
	var req ChatCompletionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid chat request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages cannot be empty")
	}
	input := strings.TrimSpace(req.Messages[len(req.Messages)-1].Content)
	if input == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "last message content is required")
	}

	ctx := c.Request().Context()
	res, err := s.turns.Turn(ctx, input)
	s.metrics.recordTurn(ctx, len(res.Files), err)
	if err != nil {
		s.logger.Error(ctx, "turn failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "agent failed to answer")
	}

	model := req.Model
	if model == "" {
		model = s.config.Model
	}
	return c.JSON(http.StatusOK, ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: s.now().Unix(),
		Model:   model,
		Choices: []ChatCompletionChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: res.Answer},
			FinishReason: "stop",
		}},
		Usage: Usage{},
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
