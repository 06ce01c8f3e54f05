package llm_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/llm"
)

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicTurn struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string           `json:"model"`
	System      []anthropicBlock `json:"system"`
	Messages    []anthropicTurn  `json:"messages"`
	Temperature *float64         `json:"temperature"`
	Stream      bool             `json:"stream"`
}

func decodeAnthropicRequest(t *testing.T, r *http.Request) anthropicRequest {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var req anthropicRequest
	require.NoError(t, json.Unmarshal(b, &req))
	return req
}

func TestAnthropicModel_Invoke(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		got = decodeAnthropicRequest(t, r)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",`+
			`"content":[{"type":"text","text":"你好"}],"stop_reason":"end_turn","stop_sequence":null,`+
			`"usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	model := llm.NewAnthropic(llm.Config{APIKey: "k", BaseURL: srv.URL, Model: "claude-test", Temperature: 0.7})
	out, err := model.Invoke(context.Background(), []core.Message{
		core.SystemMessage("persona"),
		core.SystemMessage("memory block"),
		core.UserMessage("hi"),
		core.AssistantMessage("hello"),
		core.UserMessage("again"),
	}, llm.WithTemperature(0))
	require.NoError(t, err)
	assert.Equal(t, "你好", out)

	assert.Equal(t, "claude-test", got.Model)
	require.Len(t, got.System, 2)
	assert.Equal(t, "persona", got.System[0].Text)
	assert.Equal(t, "memory block", got.System[1].Text)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "again", got.Messages[2].Content[0].Text)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.0, *got.Temperature)
	assert.False(t, got.Stream)
}

func TestAnthropicModel_InvokeEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",`+
			`"content":[],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":0}}`)
	}))
	defer srv.Close()

	model := llm.NewAnthropic(llm.Config{APIKey: "k", BaseURL: srv.URL})
	_, err := model.Invoke(context.Background(), []core.Message{core.UserMessage("hi")})
	assert.ErrorIs(t, err, core.ErrEmptyResponse)
}

func TestAnthropicModel_Stream(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeAnthropicRequest(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		event := func(name, data string) {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
		}
		event("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant",`+
			`"model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":0}}}`)
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		for _, part := range []string{"你", "好", "！"} {
			event("content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, part))
		}
		event("content_block_stop", `{"type":"content_block_stop","index":0}`)
		event("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":3}}`)
		event("message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	model := llm.NewAnthropic(llm.Config{APIKey: "k", BaseURL: srv.URL, Model: "claude-test"})
	var chunks []string
	done := false
	out, err := model.Stream(context.Background(), []core.Message{
		core.SystemMessage("persona"),
		core.UserMessage("hi"),
	}, func(chunk string, d bool) {
		if d {
			done = true
			return
		}
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, "你好！", out)
	assert.Equal(t, "你好！", strings.Join(chunks, ""))
	assert.True(t, done)
	assert.True(t, got.Stream)
	require.Len(t, got.System, 1)
	assert.Equal(t, "persona", got.System[0].Text)
}
