// Package search augments chat turns with web results from a pluggable provider.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Provider runs a web search.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// ResultsHeader introduces search results in the prompt.
const ResultsHeader = "🔎 网络搜索结果:"

// FormatResults renders results as a prompt block. It returns "" for no results.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(ResultsHeader)
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, r.Title)
		if r.URL != "" {
			fmt.Fprintf(&sb, " (%s)", r.URL)
		}
		if c := strings.TrimSpace(r.Content); c != "" {
			sb.WriteString("\n   ")
			sb.WriteString(c)
		}
	}
	return sb.String()
}

// CachedProvider remembers results per query for a while. Repeated questions
// within a conversation would otherwise hit the search backend every turn.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache
}

// Cached wraps p with a TTL cache.
func Cached(p Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: p,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedProvider) Search(ctx context.Context, query string) ([]Result, error) {
	key := strings.TrimSpace(query)
	if v, ok := c.cache.Get(key); ok {
		return v.([]Result), nil
	}
	results, err := c.inner.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, results)
	return results, nil
}
