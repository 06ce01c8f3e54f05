package pgvector_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/mock"
	"github.com/becomeliminal/recall/memory/store/pgvector"
)

// Set RECALL_TEST_PG_DSN to a database with the vector extension available.
func newStore(t *testing.T) (*pgvector.Store, *mock.Embedder) {
	t.Helper()
	dsn := os.Getenv("RECALL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("RECALL_TEST_PG_DSN not set")
	}
	embedder := mock.NewWithDimensions(64)
	table := fmt.Sprintf("memories_test_%d", time.Now().UnixNano())
	store, err := pgvector.New(context.Background(), pgvector.Config{
		DSN:        dsn,
		Table:      table,
		Dimensions: embedder.Dimensions(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, embedder
}

func add(t *testing.T, s *pgvector.Store, e *mock.Embedder, userID, text string) *memory.Record {
	t.Helper()
	rec := memory.NewRecord(userID, text, core.RoleUser)
	vec, err := e.Embed(context.Background(), text)
	require.NoError(t, err)
	rec.Embedding = vec
	require.NoError(t, s.Add(context.Background(), rec))
	return rec
}

func TestNew_Validation(t *testing.T) {
	_, err := pgvector.New(context.Background(), pgvector.Config{Dimensions: 8})
	assert.Error(t, err)
	_, err = pgvector.New(context.Background(), pgvector.Config{DSN: "postgres://x"})
	assert.Error(t, err)
}

func TestStore_SearchScopedToUser(t *testing.T) {
	ctx := context.Background()
	s, e := newStore(t)

	add(t, s, e, "alice", "我喜欢爬山")
	add(t, s, e, "bob", "我喜欢爬山")

	query, err := e.Embed(ctx, "我喜欢爬山")
	require.NoError(t, err)
	results, err := s.Search(ctx, "alice", query, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].UserID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}

func TestStore_GetDelete(t *testing.T) {
	ctx := context.Background()
	s, e := newStore(t)
	rec := add(t, s, e, "alice", "hello")

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Len(t, got.Embedding, e.Dimensions())

	ok, err := s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_ListAndDeleteAll(t *testing.T) {
	ctx := context.Background()
	s, e := newStore(t)
	add(t, s, e, "alice", "one")
	add(t, s, e, "alice", "two")

	list, err := s.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.DeleteAll(ctx, "alice"))
	list, err = s.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
}
