package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/engine"
	"github.com/becomeliminal/recall/history"
	"github.com/becomeliminal/recall/intent"
	"github.com/becomeliminal/recall/memory"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	UserID       string   `json:"user_id"`
	Message      string   `json:"message"`
	UseMemory    *bool    `json:"use_memory,omitempty"`
	UseSearch    bool     `json:"use_search,omitempty"`
	ContextLimit int      `json:"context_limit,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response     string           `json:"response"`
	UserID       string           `json:"user_id"`
	Intent       *intent.State    `json:"intent,omitempty"`
	MemoriesUsed []*memory.Record `json:"memories_used,omitempty"`
	Stored       bool             `json:"stored"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Message string `json:"message"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.UserID == "" || strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and message are required")
	}
	if !s.limiter.Allow(req.UserID) {
		s.metrics.rateLimited.Inc()
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	start := time.Now()
	out, err := s.engine.Run(c.Request().Context(), s.chatInput(req))
	s.metrics.ObserveChat("http", out, err, time.Since(start))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Response:     out.Text,
		UserID:       req.UserID,
		Intent:       out.Intent,
		MemoriesUsed: out.MemoriesUsed,
		Stored:       out.Stored,
	})
}

func (s *Server) chatInput(req ChatRequest) *engine.Input {
	useMemory := s.config.UseMemory
	if req.UseMemory != nil {
		useMemory = *req.UseMemory
	}
	limit := req.ContextLimit
	if limit <= 0 {
		limit = s.config.ContextLimit
	}
	return &engine.Input{
		UserID:       req.UserID,
		Message:      req.Message,
		UseMemory:    useMemory,
		UseSearch:    req.UseSearch,
		ContextLimit: limit,
		Temperature:  req.Temperature,
	}
}

func (s *Server) analyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	pipeline := s.engine.Intent()
	if pipeline == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "intent analysis is not configured")
	}
	state := pipeline.AnalyzeWithDetails(c.Request().Context(), req.Message)
	return c.JSON(http.StatusOK, map[string]any{
		"message":            state.Message,
		"message_type":       state.MessageType,
		"confidence":         state.Confidence,
		"retrieve_needed":    state.RetrieveNeeded,
		"retrieve_reasoning": state.RetrieveReasoning,
		"store_needed":       state.StoreNeeded,
		"store_reasoning":    state.StoreReasoning,
		"reasoning":          state.Reasoning(),
		"error":              state.Error,
	})
}

func (s *Server) memoryManager() (*memory.Manager, error) {
	m := s.engine.Memory()
	if m == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "memory is not configured")
	}
	return m, nil
}

func (s *Server) listMemories(c echo.Context) error {
	m, err := s.memoryManager()
	if err != nil {
		return err
	}
	userID := c.Param("user_id")
	records, err := m.ListAll(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id":  userID,
		"memories": nonNil(records),
	})
}

func (s *Server) searchMemories(c echo.Context) error {
	m, err := s.memoryManager()
	if err != nil {
		return err
	}
	userID := c.Param("user_id")
	query := c.QueryParam("q")
	if strings.TrimSpace(query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	records, err := m.Search(c.Request().Context(), userID, query, limit)
	s.metrics.ObserveMemoryOp("search", err == nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id":  userID,
		"query":    query,
		"memories": nonNil(records),
	})
}

func (s *Server) exportMemories(c echo.Context) error {
	m, err := s.memoryManager()
	if err != nil {
		return err
	}
	userID := c.Param("user_id")
	data, err := m.Export(c.Request().Context(), userID)
	s.metrics.ObserveMemoryOp("export", err == nil)
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("memories_%s_%s.json", userID, time.Now().Format("20060102_150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, data)
}

func (s *Server) stats(c echo.Context) error {
	stats, err := s.engine.Stats(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) deleteMemory(c echo.Context) error {
	m, err := s.memoryManager()
	if err != nil {
		return err
	}
	ok := m.DeleteOwned(c.Request().Context(), c.Param("user_id"), c.Param("memory_id"))
	s.metrics.ObserveMemoryOp("delete", ok)
	return c.JSON(http.StatusOK, map[string]bool{"deleted": ok})
}

func (s *Server) deleteAllMemories(c echo.Context) error {
	m, err := s.memoryManager()
	if err != nil {
		return err
	}
	ok := m.DeleteAll(c.Request().Context(), c.Param("user_id"))
	s.metrics.ObserveMemoryOp("delete_all", ok)
	return c.JSON(http.StatusOK, map[string]bool{"deleted": ok})
}

func (s *Server) getHistory(c echo.Context) error {
	userID := c.Param("user_id")
	turns, err := s.engine.History().Recent(c.Request().Context(), userID, 0)
	if err != nil {
		return err
	}
	if turns == nil {
		turns = []history.Turn{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id":  userID,
		"messages": turns,
	})
}

func (s *Server) clearHistory(c echo.Context) error {
	if err := s.engine.Clear(c.Request().Context(), c.Param("user_id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"cleared": true})
}

func nonNil(records []*memory.Record) []*memory.Record {
	if records == nil {
		return []*memory.Record{}
	}
	return records
}

// isClientError reports errors caused by the request rather than the server.
func isClientError(err error) bool {
	return errors.Is(err, core.ErrMissingUser) || errors.Is(err, core.ErrInvalidMessage)
}
