package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/becomeliminal/recall/core"
)

// providerBaseURLs lists the OpenAI-compatible endpoints known by name.
var providerBaseURLs = map[string]string{
	ProviderZAI:   "https://open.bigmodel.cn/api/paas/v4",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"ollama":      "http://localhost:11434/v1",
}

// BaseURLFor returns the endpoint for an OpenAI-compatible provider, or
// "" when the go-openai default applies.
func BaseURLFor(provider, override string) string {
	if override != "" {
		return override
	}
	return providerBaseURLs[provider]
}

// OpenAIModel talks to any OpenAI-compatible chat completions API.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	provider    string
	temperature float64
	maxTokens   int
}

var _ Model = (*OpenAIModel)(nil)

// NewOpenAI creates an OpenAI-compatible model client.
func NewOpenAI(cfg Config) *OpenAIModel {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if baseURL := BaseURLFor(cfg.Provider, cfg.BaseURL); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = newHTTPClient(cfg.Timeout)

	if cfg.Model == "" {
		cfg.Model = DefaultConfig.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig.MaxTokens
	}

	return &OpenAIModel{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		provider:    cfg.Provider,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultConfig.Timeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func (m *OpenAIModel) request(messages []core.Message, opts []CallOption) openai.ChatCompletionRequest {
	o := applyOptions(opts)
	temperature := m.temperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	maxTokens := m.maxTokens
	if o.MaxTokens > 0 {
		maxTokens = o.MaxTokens
	}
	return openai.ChatCompletionRequest{
		Model:       m.model,
		MaxTokens:   maxTokens,
		Temperature: openAITemperature(temperature),
		Messages:    convertMessages(messages),
	}
}

// openAITemperature keeps an explicit zero from being dropped by omitempty.
func openAITemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// Invoke performs a synchronous chat completion.
func (m *OpenAIModel) Invoke(ctx context.Context, messages []core.Message, opts ...CallOption) (string, error) {
	req := m.request(messages, opts)

	slog.Debug("llm chat request",
		"provider", m.provider,
		"model", m.model,
		"messages_count", len(messages),
	)

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", core.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream performs a streaming chat completion.
func (m *OpenAIModel) Stream(ctx context.Context, messages []core.Message, callback StreamCallback, opts ...CallOption) (string, error) {
	req := m.request(messages, opts)
	req.Stream = true

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), fmt.Errorf("stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if callback != nil {
			callback(chunk, false)
		}
	}
	if callback != nil {
		callback("", true)
	}
	return sb.String(), nil
}

func convertMessages(messages []core.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case core.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case core.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return out
}
