// Package server exposes the chat engine and memory management over HTTP and
// WebSocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/recall/engine"
)

// Config configures the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimitRPS and RateLimitBurst bound chat and analyze calls per user.
	RateLimitRPS   float64
	RateLimitBurst int

	// UseMemory is the default when a request does not say.
	UseMemory bool

	// ContextLimit is the default number of injected memories.
	ContextLimit int
}

// Server serves the API.
type Server struct {
	echo     *echo.Echo
	engine   *engine.Engine
	metrics  *Metrics
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	config   Config
}

// New builds the echo instance and registers all routes.
func New(eng *engine.Engine, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = engine.DefaultContextLimit
	}

	s := &Server{
		echo:    echo.New(),
		engine:  eng,
		metrics: NewMetrics(),
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		config: cfg,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(s.requestLogger)

	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.GET("/ws", s.websocket)

	e.POST("/chat", s.chat)
	e.POST("/analyze", s.analyze)

	mem := e.Group("/memory")
	mem.GET("/:user_id", s.listMemories)
	mem.GET("/:user_id/search", s.searchMemories)
	mem.GET("/:user_id/export", s.exportMemories)
	mem.GET("/:user_id/stats", s.stats)
	mem.DELETE("/:user_id", s.deleteAllMemories)
	mem.DELETE("/:user_id/:memory_id", s.deleteMemory)

	hist := e.Group("/history")
	hist.GET("/:user_id", s.getHistory)
	hist.DELETE("/:user_id", s.clearHistory)

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.echo,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "component", "server", "addr", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("server shutting down", "component", "server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		slog.Debug("http request",
			"component", "server",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"duration", time.Since(start),
		)
		return err
	}
}

// errorHandler renders every error as {"detail": "..."}.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	detail := err.Error()
	var he *echo.HTTPError
	if isClientError(err) {
		code = http.StatusBadRequest
	} else if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	}
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "component", "server", "path", c.Path(), "error", err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"detail": detail})
	}
	if err != nil {
		slog.Warn("failed to write error response", "component", "server", "error", err)
	}
}
