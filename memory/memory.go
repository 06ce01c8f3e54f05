package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/recall/core"
)

// Record is one remembered utterance. Records are never mutated in place.
type Record struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	Role      core.Role `json:"role" yaml:"role"`
	Text      string    `json:"text" yaml:"text"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// Score is the relevance score, set only on search results.
	Score float64 `json:"score,omitempty" yaml:"score,omitempty"`

	Embedding []float32 `json:"-" yaml:"-"`
}

// NewRecord creates a record with a fresh ID.
func NewRecord(userID, text string, role core.Role) *Record {
	return &Record{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// Store is the vector storage backend.
// Implementations: chromem.Store (local), pgvector.Store (PostgreSQL).
type Store interface {
	// Add saves a record. The record's embedding must be set.
	Add(ctx context.Context, rec *Record) error

	// Search returns the user's records most similar to embedding, highest score first.
	Search(ctx context.Context, userID string, embedding []float32, limit int) ([]*Record, error)

	// List returns every record owned by the user.
	List(ctx context.Context, userID string) ([]*Record, error)

	// Get returns a record by ID, or core.ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes a record. It reports false when the ID does not exist.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteAll removes every record owned by the user.
	DeleteAll(ctx context.Context, userID string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), openai (remote API), onnx (local model).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
