// Package history keeps the per-user conversation transcript that feeds the
// prompt's recent-turn window. It is separate from long-term memory: every
// turn is recorded here, only gated turns reach the vector store.
package history

import (
	"context"
	"time"

	"github.com/becomeliminal/recall/core"
)

// Turn is one recorded message.
type Turn struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	Role      core.Role `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Message converts the turn to a prompt message.
func (t Turn) Message() core.Message {
	return core.Message{Role: t.Role, Content: t.Content}
}

// Store persists conversation turns per user.
type Store interface {
	// Append records a message at the end of the user's transcript.
	Append(ctx context.Context, userID string, msg core.Message) error

	// Recent returns the last n turns, oldest first. n <= 0 returns everything.
	Recent(ctx context.Context, userID string, n int) ([]Turn, error)

	// Count returns the number of recorded turns.
	Count(ctx context.Context, userID string) (int, error)

	// Clear removes the user's transcript.
	Clear(ctx context.Context, userID string) error

	// Close releases resources.
	Close() error
}

// Messages converts turns to prompt messages.
func Messages(turns []Turn) []core.Message {
	msgs := make([]core.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, t.Message())
	}
	return msgs
}
