package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ZHIPU_API_KEY", "")
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "zai", cfg.LLM.Provider)
	assert.Equal(t, "glm-4-flash", cfg.LLM.Model)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, uint32(3), cfg.LLM.Breaker.MaxFailures)
	assert.Equal(t, "embedding-3", cfg.Embedder.Model)
	assert.Equal(t, 2048, cfg.Embedder.Dimensions)
	assert.Equal(t, "chromem", cfg.Store.Driver)
	assert.Equal(t, "./chroma_db", cfg.Store.Path)
	assert.Equal(t, 10, cfg.History.Window)
	assert.Equal(t, 5, cfg.Chat.ContextLimit)
	assert.True(t, cfg.Chat.UseMemory)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RECALL_LLM_MODEL", "glm-4-plus")
	t.Setenv("RECALL_CHAT_CONTEXT_LIMIT", "8")
	t.Setenv("RECALL_STORE_PATH", "/tmp/vectors")
	t.Setenv("RECALL_LLM_API_KEY", "")
	t.Setenv("ZHIPU_API_KEY", "zhipu-key")

	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "glm-4-plus", cfg.LLM.Model)
	assert.Equal(t, 8, cfg.Chat.ContextLimit)
	assert.Equal(t, "/tmp/vectors", cfg.Store.Path)
	assert.Equal(t, "zhipu-key", cfg.LLM.APIKey)
	assert.Equal(t, "zhipu-key", cfg.Embedder.APIKey)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("ZHIPU_API_KEY", "")
	path := filepath.Join(t.TempDir(), "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: deepseek
  model: deepseek-chat
  timeout: 10s
store:
  driver: pgvector
  dsn: postgres://localhost/recall
history:
  driver: memory
`), 0o600))

	cfg, err := config.Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "pgvector", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.History.Driver)

	_, err = config.Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("ZHIPU_API_KEY", "")
	base, err := config.Load(viper.New(), "")
	require.NoError(t, err)

	cases := map[string]func(c *config.Config){
		"context limit too low":  func(c *config.Config) { c.Chat.ContextLimit = 0 },
		"context limit too high": func(c *config.Config) { c.Chat.ContextLimit = 11 },
		"temperature":            func(c *config.Config) { c.LLM.Temperature = 2.5 },
		"store driver":           func(c *config.Config) { c.Store.Driver = "redis" },
		"pgvector without dsn":   func(c *config.Config) { c.Store.Driver = "pgvector"; c.Store.DSN = "" },
		"history driver":         func(c *config.Config) { c.History.Driver = "files" },
		"embedder":               func(c *config.Config) { c.Embedder.Provider = "word2vec" },
		"log format":             func(c *config.Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
