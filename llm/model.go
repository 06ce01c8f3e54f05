// Package llm provides the language-model clients used by the intent
// pipeline and the conversation engine.
//
// Every provider implements Model. Intent stages use the synchronous Invoke
// form because they need the complete JSON reply; the engine streams the
// final user-facing answer through Stream.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/becomeliminal/recall/core"
)

// StreamCallback receives response fragments as they arrive.
// The final call has done set to true and an empty chunk.
type StreamCallback func(chunk string, done bool)

// Model is a chat-completion backend.
type Model interface {
	// Invoke sends messages and returns the complete response text.
	Invoke(ctx context.Context, messages []core.Message, opts ...CallOption) (string, error)

	// Stream sends messages, forwards fragments to callback and returns the
	// assembled response text once the stream ends.
	Stream(ctx context.Context, messages []core.Message, callback StreamCallback, opts ...CallOption) (string, error)
}

// CallOption adjusts a single model call.
type CallOption func(*CallOptions)

// CallOptions holds per-call overrides. Nil fields fall back to the model's configuration.
type CallOptions struct {
	Temperature *float64
	MaxTokens   int
}

// WithTemperature overrides the sampling temperature for one call.
func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = &t
	}
}

// WithMaxTokens overrides the response token limit for one call.
func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = n
	}
}

func applyOptions(opts []CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Config configures a provider.
type Config struct {
	Provider    string // zai, openai, deepseek, siliconflow, ollama, anthropic
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	// Timeout bounds a single HTTP round trip at the client level.
	Timeout time.Duration
}

// Provider names.
const (
	ProviderZAI       = "zai"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultConfig targets Zhipu's OpenAI-compatible endpoint.
var DefaultConfig = Config{
	Provider:    ProviderZAI,
	Model:       "glm-4-flash",
	Temperature: 0.7,
	MaxTokens:   2048,
	Timeout:     120 * time.Second,
}

// New creates the Model for cfg.Provider.
func New(cfg Config) (Model, error) {
	if cfg.APIKey == "" && cfg.Provider != "ollama" {
		return nil, fmt.Errorf("llm: api key is required for provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return NewOpenAI(cfg), nil
	}
}
