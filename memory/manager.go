package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/becomeliminal/recall/core"
)

// Manager is the memory adapter used by the engine, the HTTP API and the CLI.
// Every operation is scoped by user ID.
type Manager struct {
	store    Store
	embedder Embedder
	config   *Config
}

// Config holds Manager configuration.
type Config struct {
	// SearchLimit is used when a caller passes a non-positive limit.
	// Default: 5
	SearchLimit int

	// MinSimilarity drops search results scoring below it [0.0-1.0].
	// Default: 0 (keep everything the store returns)
	MinSimilarity float64
}

// DefaultConfig returns the defaults used when NewManager gets a nil config.
var DefaultConfig = &Config{
	SearchLimit:   5,
	MinSimilarity: 0,
}

// NewManager creates a Manager over store and embedder.
func NewManager(store Store, embedder Embedder, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = DefaultConfig.SearchLimit
	}
	return &Manager{
		store:    store,
		embedder: embedder,
		config:   config,
	}
}

// Add stores text as a new record for the user. Failures wrap
// core.ErrStoreWrite; callers log them and carry on.
func (m *Manager) Add(ctx context.Context, userID, text string, role core.Role) error {
	if userID == "" {
		return fmt.Errorf("%w: %w", core.ErrStoreWrite, core.ErrMissingUser)
	}
	rec := NewRecord(userID, text, role)

	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("%w: embed: %w", core.ErrStoreWrite, err)
	}
	rec.Embedding = embedding

	if err := m.store.Add(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreWrite, err)
	}

	slog.Debug("memory stored",
		"component", "memory",
		"user_id", userID,
		"role", role,
		"id", rec.ID,
		"text", truncateLog(text, 50),
	)
	return nil
}

// Search returns up to limit of the user's records, most relevant first.
// An empty result is not an error.
func (m *Manager) Search(ctx context.Context, userID, query string, limit int) ([]*Record, error) {
	if userID == "" {
		return nil, core.ErrMissingUser
	}
	if limit <= 0 {
		limit = m.config.SearchLimit
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	records, err := m.store.Search(ctx, userID, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	results := make([]*Record, 0, len(records))
	for _, rec := range records {
		// Never trust a backend to have honoured the scope.
		if rec.UserID != userID {
			continue
		}
		if rec.Score < m.config.MinSimilarity {
			continue
		}
		results = append(results, rec)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	slog.Debug("memory search",
		"component", "memory",
		"user_id", userID,
		"query", truncateLog(query, 50),
		"results", len(results),
	)
	return results, nil
}

// ListAll returns every record owned by the user, oldest first.
func (m *Manager) ListAll(ctx context.Context, userID string) ([]*Record, error) {
	if userID == "" {
		return nil, core.ErrMissingUser
	}
	records, err := m.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// Get returns one record by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	return m.store.Get(ctx, id)
}

// Delete removes a record. It returns false, never an error, when the ID is
// unknown or the backend fails, so bulk operations can continue.
func (m *Manager) Delete(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	ok, err := m.store.Delete(ctx, id)
	if err != nil {
		slog.Warn("memory delete failed", "component", "memory", "id", id, "error", err)
		return false
	}
	return ok
}

// DeleteOwned removes a record only if it belongs to userID.
func (m *Manager) DeleteOwned(ctx context.Context, userID, id string) bool {
	rec, err := m.store.Get(ctx, id)
	if err != nil || rec.UserID != userID {
		return false
	}
	return m.Delete(ctx, id)
}

// DeleteAll removes every record owned by the user. Same soft-failure contract as Delete.
func (m *Manager) DeleteAll(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	if err := m.store.DeleteAll(ctx, userID); err != nil {
		slog.Warn("memory delete all failed", "component", "memory", "user_id", userID, "error", err)
		return false
	}
	slog.Info("memories cleared", "component", "memory", "user_id", userID)
	return true
}

// Export is a point-in-time snapshot of a user's memories.
type Export struct {
	UserID        string    `json:"user_id" yaml:"user_id"`
	ExportTime    string    `json:"export_time" yaml:"export_time"`
	TotalMemories int       `json:"total_memories" yaml:"total_memories"`
	Memories      []*Record `json:"memories" yaml:"memories"`
}

// Snapshot collects a user's memories into an Export.
func (m *Manager) Snapshot(ctx context.Context, userID string) (*Export, error) {
	records, err := m.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*Record{}
	}
	return &Export{
		UserID:        userID,
		ExportTime:    time.Now().Format(time.RFC3339),
		TotalMemories: len(records),
		Memories:      records,
	}, nil
}

// Export serializes a snapshot of the user's memories as indented JSON.
func (m *Manager) Export(ctx context.Context, userID string) ([]byte, error) {
	snapshot, err := m.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}

// Stats summarizes a user's memories.
type Stats struct {
	Total          int `json:"total"`
	UserTurns      int `json:"user_turns"`
	AssistantTurns int `json:"assistant_turns"`
}

// Stats counts the user's memories by role.
func (m *Manager) Stats(ctx context.Context, userID string) (*Stats, error) {
	records, err := m.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Total: len(records)}
	for _, rec := range records {
		switch rec.Role {
		case core.RoleUser:
			stats.UserTurns++
		case core.RoleAssistant:
			stats.AssistantTurns++
		}
	}
	return stats, nil
}

// ContextHeader introduces retrieved memories in the prompt.
const ContextHeader = "📚 相关历史记忆:"

// FormatContext renders records as a prompt block. It returns "" for no records.
func FormatContext(records []*Record) string {
	if len(records) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(ContextHeader)
	for _, rec := range records {
		sb.WriteString("\n- ")
		sb.WriteString(rec.Text)
	}
	return sb.String()
}

// truncateLog truncates text for logging without splitting a rune.
func truncateLog(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
