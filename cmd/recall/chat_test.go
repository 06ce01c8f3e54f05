package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/config"
	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/engine"
	"github.com/becomeliminal/recall/llm"
)

type replyModel struct{}

func (replyModel) Invoke(context.Context, []core.Message, ...llm.CallOption) (string, error) {
	return "好的", nil
}

func (replyModel) Stream(_ context.Context, _ []core.Message, cb llm.StreamCallback, _ ...llm.CallOption) (string, error) {
	cb("好的", false)
	cb("", true)
	return "好的", nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Embedder: config.Embedder{Provider: "mock", Dimensions: 64, CacheSize: 100},
		Store:    config.Store{Driver: "chromem", Path: filepath.Join(t.TempDir(), "vectors")},
	}
}

func TestREPL(t *testing.T) {
	ctx := context.Background()
	a, err := newMemoryApp(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()
	a.engine = engine.NewEngine(replyModel{}, engine.WithMemory(a.memory))

	var out bytes.Buffer
	r := &repl{
		app:    a,
		userID: "alice",
		in:     strings.NewReader("我喜欢爬山\n/stats\n/search 爬山\n/memories\n/clear\n/bogus\n/exit\nnever reached\n"),
		out:    &out,
		input:  engine.Input{UserID: "alice", UseMemory: true, ContextLimit: 5},
	}
	require.NoError(t, r.run(ctx))

	text := out.String()
	assert.Contains(t, text, "好的")
	assert.Contains(t, text, "memories: 2 (user 1, assistant 1)")
	assert.Contains(t, text, "条相关记忆")
	assert.Contains(t, text, "[user] 我喜欢爬山")
	assert.Contains(t, text, "[assistant] 好的")
	assert.Contains(t, text, "conversation cleared")
	assert.Contains(t, text, "unknown command /bogus")
	assert.NotContains(t, text, "never reached")
}

func TestWriteOutput(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, writeOutput(&stdout, "", []byte(`{"a":1}`)))
	assert.Equal(t, "{\"a\":1}\n", stdout.String())

	path := filepath.Join(t.TempDir(), "export.json")
	stdout.Reset()
	require.NoError(t, writeOutput(&stdout, path, []byte(`{"a":1}`)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
	assert.Contains(t, stdout.String(), path)
}

func TestNewEmbedder(t *testing.T) {
	e, err := newEmbedder(config.Embedder{Provider: "mock", Dimensions: 32}, "zai")
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimensions())

	_, err = newEmbedder(config.Embedder{Provider: "openai"}, "zai")
	assert.Error(t, err, "an API key is required")
}
