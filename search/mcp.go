package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName    = "recall"
	clientVersion = "0.1.0"
)

// MCPConfig configures a stdio MCP search server such as mcp-searxng.
type MCPConfig struct {
	// Command launches the server.
	Command string
	Args    []string

	// Env is added to the inherited environment, e.g. SEARXNG_BASE_URL.
	Env map[string]string

	// Tool is the search tool name. Default: "search"
	Tool string

	// MaxResults caps returned results. Default: 5
	MaxResults int

	// Timeout bounds each call. Default: 30s
	Timeout time.Duration
}

func (c *MCPConfig) withDefaults() {
	if c.Tool == "" {
		c.Tool = "search"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// toolCaller is the part of *client.Client the provider uses.
type toolCaller interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPProvider searches through an MCP tool.
type MCPProvider struct {
	conn   toolCaller
	config MCPConfig
}

var _ Provider = (*MCPProvider)(nil)

// NewMCPProvider starts the server process and performs the MCP handshake.
func NewMCPProvider(ctx context.Context, cfg MCPConfig) (*MCPProvider, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp search: command is required")
	}
	cfg.withDefaults()

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	c := client.NewClient(transport.NewStdio(cfg.Command, env, cfg.Args...))

	// The server process lives as long as ctx; only the handshake is bounded.
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start transport: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}
	if _, err := c.Initialize(initCtx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}

	slog.Info("mcp search connected",
		"component", "search",
		"command", cfg.Command+" "+strings.Join(cfg.Args, " "),
		"tool", cfg.Tool,
	)
	return &MCPProvider{conn: c, config: cfg}, nil
}

// Search calls the configured tool with {"query": query}.
func (p *MCPProvider) Search(ctx context.Context, query string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	callReq := mcp.CallToolRequest{
		Request: mcp.Request{
			Method: string(mcp.MethodToolsCall),
		},
		Params: mcp.CallToolParams{
			Name:      p.config.Tool,
			Arguments: map[string]any{"query": query},
		},
	}

	resp, err := p.conn.CallTool(ctx, callReq)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}
	text := extractText(resp)
	if resp.IsError {
		return nil, fmt.Errorf("search tool error: %s", text)
	}

	results := parseResults(text)
	if len(results) > p.config.MaxResults {
		results = results[:p.config.MaxResults]
	}
	slog.Debug("web search", "component", "search", "query", query, "results", len(results))
	return results, nil
}

// Close stops the server process.
func (p *MCPProvider) Close() error {
	return p.conn.Close()
}

func extractText(resp *mcp.CallToolResult) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, content := range resp.Content {
		if c, ok := mcp.AsTextContent(content); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(c.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// parseResults accepts a JSON array of results, an object wrapping one in
// "results", or plain text.
func parseResults(text string) []Result {
	if text == "" {
		return []Result{}
	}
	var list []Result
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return list
	}
	var envelope struct {
		Results []Result `json:"results"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err == nil && envelope.Results != nil {
		return envelope.Results
	}
	return []Result{{Title: "search", Content: text}}
}
