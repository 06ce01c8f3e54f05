package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/recall/core"
)

// AnthropicModel talks to the Claude Messages API.
type AnthropicModel struct {
	client      *anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

var _ Model = (*AnthropicModel)(nil)

// NewAnthropic creates a Claude-backed model.
func NewAnthropic(cfg Config) *AnthropicModel {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = int64(DefaultConfig.MaxTokens)
	}

	return &AnthropicModel{
		client:      &client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

func (m *AnthropicModel) params(messages []core.Message, opts []CallOption) anthropic.MessageNewParams {
	o := applyOptions(opts)
	temperature := m.temperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	maxTokens := m.maxTokens
	if o.MaxTokens > 0 {
		maxTokens = int64(o.MaxTokens)
	}

	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case core.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return anthropic.MessageNewParams{
		Model:       anthropic.Model(m.model),
		MaxTokens:   maxTokens,
		Messages:    turns,
		System:      system,
		Temperature: anthropic.Float(temperature),
	}
}

// Invoke sends a non-streaming request.
func (m *AnthropicModel) Invoke(ctx context.Context, messages []core.Message, opts ...CallOption) (string, error) {
	resp, err := m.client.Messages.New(ctx, m.params(messages, opts))
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", core.ErrEmptyResponse
	}
	return text, nil
}

// Stream sends a streaming request and accumulates the full message.
func (m *AnthropicModel) Stream(ctx context.Context, messages []core.Message, callback StreamCallback, opts ...CallOption) (string, error) {
	stream := m.client.Messages.NewStreaming(ctx, m.params(messages, opts))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			slog.Warn("claude stream accumulate failed", "error", err)
		}

		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if callback != nil {
					callback(delta.Text, false)
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return responseText(&message), fmt.Errorf("claude stream: %w", err)
	}
	if callback != nil {
		callback("", true)
	}
	return responseText(&message), nil
}

func responseText(resp *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
