package history

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/becomeliminal/recall/core"
)

// MemoryStore is an in-process Store. Transcripts are lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	turns   map[string][]Turn
	entropy *ulid.MonotonicEntropy
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory transcript store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:   make(map[string][]Turn),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (s *MemoryStore) Append(_ context.Context, userID string, msg core.Message) error {
	if userID == "" {
		return core.ErrMissingUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.turns[userID] = append(s.turns[userID], Turn{
		ID:        ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		UserID:    userID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: now,
	})
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, userID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[userID]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns[userID]), nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, userID)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
