package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/becomeliminal/recall/config"
	"github.com/becomeliminal/recall/engine"
	"github.com/becomeliminal/recall/history"
	"github.com/becomeliminal/recall/intent"
	"github.com/becomeliminal/recall/llm"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/mock"
	openaiembed "github.com/becomeliminal/recall/memory/embedder/openai"
	"github.com/becomeliminal/recall/memory/store/chromem"
	"github.com/becomeliminal/recall/memory/store/pgvector"
	"github.com/becomeliminal/recall/search"
)

// app owns every long-lived collaborator. Close releases them in reverse order.
type app struct {
	engine  *engine.Engine
	memory  *memory.Manager
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	model, err := newModel(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if err := a.openMemory(ctx, cfg); err != nil {
		return nil, err
	}

	transcript, err := newHistory(cfg.History)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, transcript.Close)

	opts := []engine.Option{
		engine.WithMemory(a.memory),
		engine.WithIntent(intent.NewPipeline(model)),
		engine.WithHistory(transcript),
		engine.WithHistoryWindow(cfg.History.Window),
		engine.WithSystemPrompt(cfg.Chat.SystemPrompt),
		engine.WithTemperature(cfg.LLM.Temperature),
	}

	if cfg.Search.Enabled {
		provider, err := search.NewMCPProvider(ctx, search.MCPConfig{
			Command:    cfg.Search.Command,
			Args:       cfg.Search.Args,
			Env:        map[string]string{"SEARXNG_BASE_URL": cfg.Search.SearxngBaseURL},
			Tool:       cfg.Search.Tool,
			MaxResults: cfg.Search.MaxResults,
			Timeout:    cfg.Search.Timeout,
		})
		if err != nil {
			// Chat works without search.
			slog.Warn("web search disabled", "component", "app", "error", err)
		} else {
			a.closers = append(a.closers, provider.Close)
			opts = append(opts, engine.WithSearch(search.Cached(provider, cfg.Search.CacheTTL)))
		}
	}

	a.engine = engine.NewEngine(model, opts...)
	ok = true
	return a, nil
}

// newMemoryApp opens only long-term memory, for commands that never call the model.
func newMemoryApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	if err := a.openMemory(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openMemory(ctx context.Context, cfg *config.Config) error {
	embedder, err := newEmbedder(cfg.Embedder, cfg.LLM.Provider)
	if err != nil {
		return err
	}
	if c, isCloser := embedder.(interface{ Close() error }); isCloser {
		a.closers = append(a.closers, c.Close)
	}
	cached, err := memory.NewCachedEmbedder(embedder, cfg.Embedder.CacheSize)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { cached.Close(); return nil })

	store, err := newStore(ctx, cfg.Store, embedder.Dimensions())
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)
	a.memory = memory.NewManager(store, cached, nil)
	return nil
}

// newModel builds the provider client behind a breaker and a per-call timeout.
func newModel(c config.LLM) (llm.Model, error) {
	model, err := llm.New(llm.Config{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
	})
	if err != nil {
		return nil, err
	}
	breaker := llm.NewBreaker(c.Provider, llm.BreakerConfig{
		MaxFailures:          c.Breaker.MaxFailures,
		OpenTimeout:          c.Breaker.OpenTimeout,
		HalfOpenMaxSuccesses: c.Breaker.HalfOpenMaxSuccesses,
	})
	return llm.Guarded(model, breaker, c.Timeout), nil
}

// newEmbedder uses the chat vendor's OpenAI-compatible embeddings endpoint
// unless a base URL is configured.
func newEmbedder(c config.Embedder, vendor string) (memory.Embedder, error) {
	switch c.Provider {
	case "mock":
		return mock.NewWithDimensions(c.Dimensions), nil
	case "onnx":
		return newONNXEmbedder(c)
	default:
		if vendor == llm.ProviderAnthropic {
			vendor = llm.ProviderOpenAI
		}
		return openaiembed.New(openaiembed.Config{
			Provider:   vendor,
			APIKey:     c.APIKey,
			BaseURL:    c.BaseURL,
			Model:      c.Model,
			Dimensions: c.Dimensions,
		})
	}
}

func newStore(ctx context.Context, c config.Store, dims int) (memory.Store, error) {
	switch c.Driver {
	case "pgvector":
		return pgvector.New(ctx, pgvector.Config{DSN: c.DSN, Dimensions: dims})
	default:
		return chromem.New(chromem.Config{
			Path:             c.Path,
			Compress:         c.Compress,
			CollectionPrefix: c.CollectionPrefix,
			Dimensions:       dims,
		})
	}
}

func newHistory(c config.History) (history.Store, error) {
	if c.Driver == "memory" {
		return history.NewMemoryStore(), nil
	}
	return history.NewSQLiteStore(c.Path)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
