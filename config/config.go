// Package config loads runtime configuration from defaults, an optional YAML
// file, RECALL_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. RECALL_LLM_MODEL.
const EnvPrefix = "recall"

// Config is the full runtime configuration. It is read once at startup.
type Config struct {
	LLM      LLM      `mapstructure:"llm"`
	Embedder Embedder `mapstructure:"embedder"`
	Store    Store    `mapstructure:"store"`
	History  History  `mapstructure:"history"`
	Search   Search   `mapstructure:"search"`
	Server   Server   `mapstructure:"server"`
	Chat     Chat     `mapstructure:"chat"`
	Logging  Logging  `mapstructure:"logging"`
}

// LLM configures the chat and intent model.
type LLM struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Breaker     Breaker       `mapstructure:"breaker"`
}

// Breaker configures the circuit breaker around model calls.
type Breaker struct {
	MaxFailures          uint32        `mapstructure:"max_failures"`
	OpenTimeout          time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxSuccesses uint32        `mapstructure:"half_open"`
}

// Embedder configures text embeddings.
type Embedder struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
	CacheSize  int64  `mapstructure:"cache_size"`

	// Local model files for the onnx provider.
	ModelPath     string `mapstructure:"model_path"`
	TokenizerPath string `mapstructure:"tokenizer_path"`
	LibraryPath   string `mapstructure:"library_path"`
}

// Store configures the vector store.
type Store struct {
	Driver           string `mapstructure:"driver"`
	Path             string `mapstructure:"path"`
	Compress         bool   `mapstructure:"compress"`
	DSN              string `mapstructure:"dsn"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// History configures the conversation transcript.
type History struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	Window int    `mapstructure:"window"`
}

// Search configures the MCP web search server.
type Search struct {
	Enabled        bool          `mapstructure:"enabled"`
	Command        string        `mapstructure:"command"`
	Args           []string      `mapstructure:"args"`
	Tool           string        `mapstructure:"tool"`
	SearxngBaseURL string        `mapstructure:"searxng_base_url"`
	MaxResults     int           `mapstructure:"max_results"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// Server configures the HTTP API.
type Server struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    RateLimit     `mapstructure:"rate_limit"`
}

// RateLimit is a per-user token bucket. RPS <= 0 disables limiting.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Chat holds per-turn defaults.
type Chat struct {
	SystemPrompt string `mapstructure:"system_prompt"`
	ContextLimit int    `mapstructure:"context_limit"`
	UseMemory    bool   `mapstructure:"use_memory"`
}

// Logging configures slog.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "zai")
	v.SetDefault("llm.model", "glm-4-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.breaker.max_failures", 3)
	v.SetDefault("llm.breaker.open_timeout", 30*time.Second)
	v.SetDefault("llm.breaker.half_open", 2)

	v.SetDefault("embedder.provider", "openai")
	v.SetDefault("embedder.model", "embedding-3")
	v.SetDefault("embedder.dimensions", 2048)
	v.SetDefault("embedder.cache_size", 10000)

	v.SetDefault("store.driver", "chromem")
	v.SetDefault("store.path", "./chroma_db")
	v.SetDefault("store.compress", false)
	v.SetDefault("store.collection_prefix", "user_")

	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", "./data/history.db")
	v.SetDefault("history.window", 10)

	v.SetDefault("search.enabled", false)
	v.SetDefault("search.command", "mcp-searxng")
	v.SetDefault("search.tool", "search")
	v.SetDefault("search.searxng_base_url", "http://localhost:8080")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.cache_ttl", 10*time.Minute)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.rate_limit.rps", 2.0)
	v.SetDefault("server.rate_limit.burst", 5)

	v.SetDefault("chat.context_limit", 5)
	v.SetDefault("chat.use_memory", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads configuration into a validated Config. A non-empty file must exist.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows; bind the rest.
	for _, key := range []string{"llm.api_key", "llm.base_url", "embedder.api_key", "embedder.base_url",
		"embedder.model_path", "embedder.tokenizer_path", "embedder.library_path", "store.dsn", "chat.system_prompt"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Zhipu's conventional variable works for both the model and embeddings.
	if key := os.Getenv("ZHIPU_API_KEY"); key != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
		if cfg.Embedder.APIKey == "" && (cfg.Embedder.Provider == "openai" || cfg.Embedder.Provider == "") {
			cfg.Embedder.APIKey = key
		}
	}
	if cfg.Embedder.APIKey == "" {
		cfg.Embedder.APIKey = cfg.LLM.APIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects out-of-range values and unknown drivers.
func (c *Config) Validate() error {
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.Chat.ContextLimit < 1 || c.Chat.ContextLimit > 10 {
		return fmt.Errorf("chat.context_limit must be within [1, 10], got %d", c.Chat.ContextLimit)
	}
	if c.History.Window < 0 {
		return fmt.Errorf("history.window must not be negative")
	}
	switch c.Embedder.Provider {
	case "openai", "mock", "onnx":
	default:
		return fmt.Errorf("unknown embedder.provider %q", c.Embedder.Provider)
	}
	switch c.Store.Driver {
	case "chromem":
	case "pgvector":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the pgvector driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.History.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown history.driver %q", c.History.Driver)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}
