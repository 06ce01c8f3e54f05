package llm_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/llm"
)

func TestOpenAIModel_Invoke(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"你好"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	model := llm.NewOpenAI(llm.Config{Provider: llm.ProviderZAI, APIKey: "k", BaseURL: srv.URL, Model: "glm-4-flash"})
	out, err := model.Invoke(context.Background(), []core.Message{
		core.SystemMessage("sys"),
		core.UserMessage("hi"),
	}, llm.WithTemperature(0))
	require.NoError(t, err)
	assert.Equal(t, "你好", out)
	assert.Contains(t, body, `"model":"glm-4-flash"`)
	assert.Contains(t, body, `"role":"system"`)
	assert.Contains(t, body, `"temperature"`)
}

func TestOpenAIModel_InvokeNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","choices":[]}`)
	}))
	defer srv.Close()

	model := llm.NewOpenAI(llm.Config{Provider: "openai", APIKey: "k", BaseURL: srv.URL})
	_, err := model.Invoke(context.Background(), []core.Message{core.UserMessage("hi")})
	assert.ErrorIs(t, err, core.ErrEmptyResponse)
}

func TestOpenAIModel_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"你", "好", "！"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	model := llm.NewOpenAI(llm.Config{Provider: "openai", APIKey: "k", BaseURL: srv.URL})

	var chunks []string
	var finished bool
	out, err := model.Stream(context.Background(), []core.Message{core.UserMessage("hi")}, func(chunk string, done bool) {
		if done {
			finished = true
			return
		}
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, "你好！", out)
	assert.Equal(t, "你好！", strings.Join(chunks, ""))
	assert.True(t, finished)
}

func TestBaseURLFor(t *testing.T) {
	assert.Equal(t, "https://open.bigmodel.cn/api/paas/v4", llm.BaseURLFor(llm.ProviderZAI, ""))
	assert.Equal(t, "http://x", llm.BaseURLFor(llm.ProviderZAI, "http://x"))
	assert.Equal(t, "", llm.BaseURLFor(llm.ProviderOpenAI, ""))
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := llm.New(llm.Config{Provider: llm.ProviderZAI})
	assert.Error(t, err)

	m, err := llm.New(llm.Config{Provider: llm.ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &llm.AnthropicModel{}, m)
}
