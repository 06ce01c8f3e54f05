// Package engine runs one chat turn: intent gating, memory and web context,
// prompt assembly, the model call and the post-response writes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/history"
	"github.com/becomeliminal/recall/intent"
	"github.com/becomeliminal/recall/llm"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/search"
)

// DefaultSystemPrompt is the assistant persona.
const DefaultSystemPrompt = "你是一个友好、专业的AI助手，擅长理解用户需求并提供有帮助的回答。"

const (
	// DefaultHistoryWindow is how many prior messages go into the prompt.
	DefaultHistoryWindow = 10

	// DefaultContextLimit is how many memories go into the prompt.
	DefaultContextLimit = 5

	// MaxContextLimit bounds ContextLimit.
	MaxContextLimit = 10

	// DefaultTemperature is used when the input does not set one.
	DefaultTemperature = 0.7
)

// ErrorPrefix marks an assistant turn that reports a failure.
const ErrorPrefix = "❌ 发生错误: "

// Engine is the conversation loop. It is safe for concurrent use when its
// collaborators are.
type Engine struct {
	model         llm.Model
	intent        *intent.Pipeline
	memory        *memory.Manager
	history       history.Store
	search        search.Provider
	systemPrompt  string
	historyWindow int
	temperature   float64
}

// Option configures the engine.
type Option func(*Engine)

// WithIntent gates memory reads and writes through the intent pipeline.
// Without it every memory-enabled turn retrieves and stores.
func WithIntent(p *intent.Pipeline) Option {
	return func(e *Engine) {
		e.intent = p
	}
}

// WithMemory configures long-term memory.
func WithMemory(m *memory.Manager) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithHistory sets the transcript store. Default: history.NewMemoryStore().
func WithHistory(h history.Store) Option {
	return func(e *Engine) {
		e.history = h
	}
}

// WithSearch enables web search augmentation.
func WithSearch(p search.Provider) Option {
	return func(e *Engine) {
		e.search = p
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		if prompt != "" {
			e.systemPrompt = prompt
		}
	}
}

// WithHistoryWindow sets how many prior messages are sent with each turn.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.historyWindow = n
		}
	}
}

// WithTemperature sets the default response temperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		e.temperature = t
	}
}

// NewEngine creates an engine around model.
func NewEngine(model llm.Model, opts ...Option) *Engine {
	e := &Engine{
		model:         model,
		systemPrompt:  DefaultSystemPrompt,
		historyWindow: DefaultHistoryWindow,
		temperature:   DefaultTemperature,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.history == nil {
		e.history = history.NewMemoryStore()
	}
	return e
}

// Memory returns the memory manager, or nil.
func (e *Engine) Memory() *memory.Manager {
	return e.memory
}

// History returns the transcript store.
func (e *Engine) History() history.Store {
	return e.history
}

// Intent returns the intent pipeline, or nil.
func (e *Engine) Intent() *intent.Pipeline {
	return e.intent
}

// Input is one chat turn.
type Input struct {
	UserID  string
	Message string

	// UseMemory enables intent analysis, retrieval and storage.
	UseMemory bool

	// UseSearch adds web results when a search provider is configured.
	UseSearch bool

	// ContextLimit caps injected memories, 1..10. Zero means DefaultContextLimit.
	ContextLimit int

	// Temperature overrides the engine default when set.
	Temperature *float64

	// StreamCallback receives the response as it is generated.
	StreamCallback llm.StreamCallback
}

// Output is the result of a turn.
type Output struct {
	// Type indicates the kind of output.
	Type OutputType

	// Text is the assistant turn as recorded in history. On error it carries
	// ErrorPrefix and the error text.
	Text string

	// Intent is the gating decision, nil when memory was off.
	Intent *intent.State

	// MemoriesUsed were injected into the prompt.
	MemoriesUsed []*memory.Record

	// SearchResults were injected into the prompt.
	SearchResults []search.Result

	// Stored reports whether both sides of the exchange reached memory.
	Stored bool

	// Error is set when Type is OutputError.
	Error error

	Duration time.Duration
}

// OutputType indicates the kind of output from a turn.
type OutputType int

const (
	// OutputComplete indicates the model answered.
	OutputComplete OutputType = iota

	// OutputError indicates the turn failed; the error was recorded as the assistant turn.
	OutputError
)

func (t OutputType) String() string {
	if t == OutputError {
		return "error"
	}
	return "complete"
}

// Run executes one turn. Intent analysis always completes before the model
// call, and memory writes happen only after the full response is assembled.
// A failed turn still returns an Output whose Text is the recorded error turn.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	start := time.Now()
	if input.UserID == "" {
		return &Output{Type: OutputError, Error: core.ErrMissingUser}, core.ErrMissingUser
	}
	out := &Output{}

	// Prior turns, excluding the current message.
	recent, err := e.history.Recent(ctx, input.UserID, e.historyWindow)
	if err != nil {
		slog.Warn("history read failed", "component", "engine", "user_id", input.UserID, "error", err)
		recent = nil
	}
	if e.historyWindow == 0 {
		recent = nil
	}

	// === PHASE 1: INTENT GATING ===
	retrieve, store := false, false
	if input.UseMemory && e.memory != nil {
		if e.intent != nil {
			out.Intent = e.intent.AnalyzeWithDetails(ctx, input.Message)
			retrieve, store = out.Intent.RetrieveNeeded, out.Intent.StoreNeeded
		} else {
			retrieve, store = true, true
		}
	}

	// === PHASE 2: CONTEXT ===
	if retrieve {
		records, err := e.memory.Search(ctx, input.UserID, input.Message, contextLimit(input.ContextLimit))
		if err != nil {
			slog.Warn("memory retrieval failed", "component", "engine", "user_id", input.UserID, "error", err)
		} else {
			out.MemoriesUsed = records
		}
	}
	if input.UseSearch && e.search != nil {
		results, err := e.search.Search(ctx, input.Message)
		if err != nil {
			slog.Warn("web search failed", "component", "engine", "error", err)
		} else {
			out.SearchResults = results
		}
	}

	messages := e.buildPrompt(input.Message, out.MemoriesUsed, out.SearchResults, recent)

	// === PHASE 3: RESPONSE ===
	temperature := e.temperature
	if input.Temperature != nil {
		temperature = *input.Temperature
	}
	var text string
	if input.StreamCallback != nil {
		text, err = e.model.Stream(ctx, messages, input.StreamCallback, llm.WithTemperature(temperature))
	} else {
		text, err = e.model.Invoke(ctx, messages, llm.WithTemperature(temperature))
	}
	if err == nil && strings.TrimSpace(text) == "" {
		err = core.ErrEmptyResponse
	}
	if err != nil {
		out.Type = OutputError
		out.Error = err
		out.Text = ErrorPrefix + err.Error()
		e.record(ctx, input.UserID, input.Message, out.Text)
		out.Duration = time.Since(start)
		slog.Error("chat turn failed", "component", "engine", "user_id", input.UserID, "error", err)
		return out, err
	}
	out.Text = text
	e.record(ctx, input.UserID, input.Message, text)

	// === PHASE 4: MEMORY WRITE ===
	if store {
		out.Stored = e.remember(ctx, input.UserID, input.Message, text)
	}

	out.Duration = time.Since(start)
	slog.Info("chat turn complete",
		"component", "engine",
		"user_id", input.UserID,
		"memories_used", len(out.MemoriesUsed),
		"search_results", len(out.SearchResults),
		"stored", out.Stored,
		"duration", out.Duration,
	)
	return out, nil
}

// buildPrompt orders the prompt as: persona, memory block, search block,
// recent history, current message.
func (e *Engine) buildPrompt(message string, memories []*memory.Record, results []search.Result, recent []history.Turn) []core.Message {
	messages := []core.Message{core.SystemMessage(e.systemPrompt)}
	if block := memory.FormatContext(memories); block != "" {
		messages = append(messages, core.SystemMessage(block))
	}
	if block := search.FormatResults(results); block != "" {
		messages = append(messages, core.SystemMessage(block))
	}
	for _, turn := range recent {
		if turn.Role == core.RoleSystem {
			continue
		}
		messages = append(messages, turn.Message())
	}
	return append(messages, core.UserMessage(message))
}

func (e *Engine) record(ctx context.Context, userID, message, reply string) {
	for _, msg := range []core.Message{core.UserMessage(message), core.AssistantMessage(reply)} {
		if err := e.history.Append(ctx, userID, msg); err != nil {
			slog.Warn("history write failed", "component", "engine", "user_id", userID, "error", err)
		}
	}
}

// remember writes both sides of the exchange. Failures are logged, never returned.
func (e *Engine) remember(ctx context.Context, userID, message, reply string) bool {
	ok := true
	if err := e.memory.Add(ctx, userID, message, core.RoleUser); err != nil {
		slog.Warn("memory write failed", "component", "engine", "role", core.RoleUser, "error", err)
		ok = false
	}
	if err := e.memory.Add(ctx, userID, reply, core.RoleAssistant); err != nil {
		slog.Warn("memory write failed", "component", "engine", "role", core.RoleAssistant, "error", err)
		ok = false
	}
	return ok
}

// Clear removes the user's transcript. Long-term memory is untouched.
func (e *Engine) Clear(ctx context.Context, userID string) error {
	if err := e.history.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Stats summarizes a user's memory and conversation.
type Stats struct {
	memory.Stats
	Turns int `json:"turns"`
}

// Stats returns memory counts by role and the transcript length.
func (e *Engine) Stats(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{}
	if e.memory != nil {
		ms, err := e.memory.Stats(ctx, userID)
		if err != nil {
			return nil, err
		}
		stats.Stats = *ms
	}
	n, err := e.history.Count(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	stats.Turns = n
	return stats, nil
}

func contextLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultContextLimit
	case n > MaxContextLimit:
		return MaxContextLimit
	default:
		return n
	}
}
